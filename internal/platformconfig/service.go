package platformconfig

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlecore-backend/internal/audit"
	"github.com/angelmondragon/settlecore-backend/internal/fees"
	"github.com/angelmondragon/settlecore-backend/pkg/config"
	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
	"github.com/angelmondragon/settlecore-backend/pkg/types"
)

// Runtime config keys. Values are stored as strings in platform_config and
// parsed by the typed getters.
const (
	KeyDisputeWindowHours          = "dispute_window_hours"
	KeySellerProtectionDays        = "seller_protection_days"
	KeyDefaultFeePercent           = "default_fee_percent"
	KeyStepUpThresholdCents        = "step_up_threshold_cents"
	KeyConfirmPhraseThresholdCents = "confirm_phrase_threshold_cents"
)

var knownKeys = []string{
	KeyDisputeWindowHours,
	KeySellerProtectionDays,
	KeyDefaultFeePercent,
	KeyStepUpThresholdCents,
	KeyConfirmPhraseThresholdCents,
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// UpdateInput carries an audited config change.
type UpdateInput struct {
	Key       string
	Value     string
	ActorID   uuid.UUID
	ActorRole enums.Role
	Reason    string
	IPAddress *string
}

// Service reads runtime settlement configuration through a short-lived cache
// so operator changes reach new transitions without a restart.
type Service interface {
	DisputeWindow(ctx context.Context) (time.Duration, error)
	SellerProtection(ctx context.Context) (time.Duration, error)
	DefaultFeePercent(ctx context.Context) (decimal.Decimal, error)
	StepUpThresholdCents(ctx context.Context) (int64, error)
	ConfirmPhraseThresholdCents(ctx context.Context) (int64, error)
	All(ctx context.Context) ([]models.PlatformConfigEntry, error)
	Update(ctx context.Context, input UpdateInput) (*models.PlatformConfigEntry, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	auditor  audit.Recorder
	defaults config.SettlementConfig
	ttl      time.Duration
	now      func() time.Time

	mtx       sync.RWMutex
	values    map[string]string
	expiresAt time.Time
}

// NewService wires the config service. The cache TTL comes from
// SettlementConfig.ConfigCacheTTL.
func NewService(repo Repository, tx txRunner, auditor audit.Recorder, defaults config.SettlementConfig) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "config repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if auditor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit recorder required")
	}
	ttl := defaults.ConfigCacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &service{
		repo:     repo,
		tx:       tx,
		auditor:  auditor,
		defaults: defaults,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

func (s *service) DisputeWindow(ctx context.Context) (time.Duration, error) {
	raw, err := s.value(ctx, KeyDisputeWindowHours, strconv.Itoa(s.defaults.DisputeWindowHours))
	if err != nil {
		return 0, err
	}
	hours, err := strconv.Atoi(raw)
	if err != nil || hours <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("invalid %s value %q", KeyDisputeWindowHours, raw))
	}
	return time.Duration(hours) * time.Hour, nil
}

func (s *service) SellerProtection(ctx context.Context) (time.Duration, error) {
	raw, err := s.value(ctx, KeySellerProtectionDays, strconv.Itoa(s.defaults.SellerProtectionDays))
	if err != nil {
		return 0, err
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("invalid %s value %q", KeySellerProtectionDays, raw))
	}
	return time.Duration(days) * 24 * time.Hour, nil
}

func (s *service) DefaultFeePercent(ctx context.Context) (decimal.Decimal, error) {
	raw, err := s.value(ctx, KeyDefaultFeePercent, s.defaults.DefaultFeePercent)
	if err != nil {
		return decimal.Decimal{}, err
	}
	percent, err := fees.ParsePercent(raw)
	if err != nil {
		return decimal.Decimal{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("invalid %s value %q", KeyDefaultFeePercent, raw))
	}
	return percent, nil
}

func (s *service) StepUpThresholdCents(ctx context.Context) (int64, error) {
	return s.centsValue(ctx, KeyStepUpThresholdCents, s.defaults.StepUpThresholdCents)
}

func (s *service) ConfirmPhraseThresholdCents(ctx context.Context) (int64, error) {
	return s.centsValue(ctx, KeyConfirmPhraseThresholdCents, s.defaults.ConfirmPhraseThresholdCents)
}

func (s *service) centsValue(ctx context.Context, key string, fallback int64) (int64, error) {
	raw, err := s.value(ctx, key, strconv.FormatInt(fallback, 10))
	if err != nil {
		return 0, err
	}
	cents, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || cents < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("invalid %s value %q", key, raw))
	}
	return cents, nil
}

func (s *service) All(ctx context.Context) ([]models.PlatformConfigEntry, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list platform config")
	}
	return entries, nil
}

func (s *service) Update(ctx context.Context, input UpdateInput) (*models.PlatformConfigEntry, error) {
	if !isKnownKey(input.Key) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown config key %q", input.Key))
	}
	if err := validateValue(input.Key, input.Value); err != nil {
		return nil, err
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}

	entry := &models.PlatformConfigEntry{
		Key:       input.Key,
		Value:     input.Value,
		UpdatedBy: &input.ActorID,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		before := ""
		if existing, err := repo.Get(ctx, input.Key); err == nil {
			before = existing.Value
		} else if err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load config entry")
		}

		if err := repo.Upsert(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert config entry")
		}

		_, err := s.auditor.Record(ctx, tx, audit.Entry{
			ActorID:    input.ActorID,
			ActorRole:  input.ActorRole,
			ActionType: enums.AdminActionConfigChange,
			TargetType: enums.TargetTypeConfig,
			TargetID:   uuid.NewSHA1(uuid.NameSpaceOID, []byte(input.Key)),
			Reason:     input.Reason,
			IPAddress:  input.IPAddress,
			Details: types.JSONMap{
				"key":    input.Key,
				"before": before,
				"after":  input.Value,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate()
	return entry, nil
}

func (s *service) value(ctx context.Context, key, fallback string) (string, error) {
	s.mtx.RLock()
	if s.values != nil && s.now().Before(s.expiresAt) {
		cached, ok := s.values[key]
		s.mtx.RUnlock()
		if ok {
			return cached, nil
		}
		return fallback, nil
	}
	s.mtx.RUnlock()

	if err := s.refresh(ctx); err != nil {
		return "", err
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()
	if cached, ok := s.values[key]; ok {
		return cached, nil
	}
	return fallback, nil
}

func (s *service) refresh(ctx context.Context) error {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load platform config")
	}

	values := make(map[string]string, len(entries))
	for _, entry := range entries {
		values[entry.Key] = entry.Value
	}

	s.mtx.Lock()
	s.values = values
	s.expiresAt = s.now().Add(s.ttl)
	s.mtx.Unlock()
	return nil
}

func (s *service) invalidate() {
	s.mtx.Lock()
	s.values = nil
	s.expiresAt = time.Time{}
	s.mtx.Unlock()
}

func isKnownKey(key string) bool {
	for _, candidate := range knownKeys {
		if candidate == key {
			return true
		}
	}
	return false
}

func validateValue(key, value string) error {
	switch key {
	case KeyDisputeWindowHours, KeySellerProtectionDays:
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s must be a positive integer", key))
		}
	case KeyDefaultFeePercent:
		if _, err := fees.ParsePercent(value); err != nil {
			return err
		}
	case KeyStepUpThresholdCents, KeyConfirmPhraseThresholdCents:
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s must be a non-negative integer", key))
		}
	}
	return nil
}
