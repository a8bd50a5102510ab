package disputes

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlecore-backend/pkg/errors"
	"github.com/angelmondragon/settlecore-backend/pkg/security"
)

// Typed confirmation phrases. Each privileged money operation names the
// phrase it demands once the order amount crosses the phrase threshold.
const (
	PhraseConfirmRefund   = "CONFIRM REFUND"
	PhraseConfirmRelease  = "CONFIRM RELEASE"
	PhraseConfirmSplit    = "CONFIRM SPLIT"
	PhraseConfirmComplete = "CONFIRM COMPLETE"
	PhraseConfirmDebit    = "CONFIRM DEBIT"
	PhraseConfirmFreeze   = "CONFIRM FREEZE"
)

// CredentialStore loads the step-up credential for one admin account.
type CredentialStore interface {
	Find(ctx context.Context, accountID uuid.UUID) (*models.AdminCredential, error)
}

// ThresholdSource reads the step-up amount thresholds from runtime config so
// a threshold change applies without a redeploy.
type ThresholdSource interface {
	StepUpThresholdCents(ctx context.Context) (int64, error)
	ConfirmPhraseThresholdCents(ctx context.Context) (int64, error)
}

// Confirmation carries the factors an admin re-entered for a privileged
// operation. Password alone covers the lower threshold; the typed phrase is
// demanded on top of it above the higher one.
type Confirmation struct {
	Password string
	Phrase   string
}

// ConfirmInput describes the operation the guard is asked to clear.
// RequiredPhrase is the exact phrase this operation demands above the phrase
// threshold; empty means the operation has no phrase tier and password
// confirmation is the ceiling.
type ConfirmInput struct {
	ActorID        uuid.UUID
	ActorRole      enums.Role
	AmountCents    int64
	RequiredPhrase string
	Confirmation   Confirmation
}

// Guard is the step-up policy gate in front of every privileged money
// mutation. It never touches order or ledger state: a rejection here means
// the underlying service is not called at all.
type Guard struct {
	creds  CredentialStore
	config ThresholdSource
}

// NewGuard wires the guard against the credential store and threshold config.
func NewGuard(creds CredentialStore, config ThresholdSource) (*Guard, error) {
	if creds == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if config == nil {
		return nil, fmt.Errorf("threshold source is required")
	}
	return &Guard{creds: creds, config: config}, nil
}

// Confirm clears the actor for an operation of the given amount and returns
// the confirmation method that satisfied the check. Below the step-up
// threshold no factor is demanded and the method is nil.
func (g *Guard) Confirm(ctx context.Context, input ConfirmInput) (*enums.ConfirmationMethod, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin identity missing")
	}
	if !input.ActorRole.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "privileged action requires an admin role")
	}
	if input.AmountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount cannot be negative")
	}

	passwordAt, err := g.config.StepUpThresholdCents(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load step-up threshold")
	}
	if input.AmountCents < passwordAt {
		return nil, nil
	}

	if err := g.verifyPassword(ctx, input.ActorID, input.Confirmation.Password); err != nil {
		return nil, err
	}
	method := enums.ConfirmationMethodPassword

	phraseAt, err := g.config.ConfirmPhraseThresholdCents(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load confirm-phrase threshold")
	}
	if input.RequiredPhrase != "" && input.AmountCents >= phraseAt {
		if input.Confirmation.Phrase != input.RequiredPhrase {
			return nil, pkgerrors.New(pkgerrors.CodeStepUpRequired, fmt.Sprintf("type %q to confirm this action", input.RequiredPhrase))
		}
		method = enums.ConfirmationMethodPhrase
	}

	return &method, nil
}

func (g *Guard) verifyPassword(ctx context.Context, actorID uuid.UUID, password string) error {
	if password == "" {
		return pkgerrors.New(pkgerrors.CodeStepUpRequired, "password confirmation required for this amount")
	}

	cred, err := g.creds.Find(ctx, actorID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeStepUpRequired, "no step-up credential on file")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load step-up credential")
	}

	ok, err := security.VerifyPassword(password, cred.PasswordHash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify step-up password")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStepUpRequired, "password confirmation failed")
	}
	return nil
}
