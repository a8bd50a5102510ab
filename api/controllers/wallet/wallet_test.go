package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/settlecore-backend/api/middleware"
	"github.com/angelmondragon/settlecore-backend/internal/ledger"
	"github.com/angelmondragon/settlecore-backend/internal/wallets"
	"github.com/angelmondragon/settlecore-backend/pkg/db/models"
	"github.com/angelmondragon/settlecore-backend/pkg/enums"
	"github.com/angelmondragon/settlecore-backend/pkg/pagination"
)

type stubWalletService struct {
	deposit           func(ctx context.Context, input wallets.DepositInput) (*models.LedgerEntry, error)
	balance           func(ctx context.Context, accountID uuid.UUID) (*ledger.Balance, error)
	history           func(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*ledger.EntryList, error)
	requestWithdrawal func(ctx context.Context, input wallets.RequestWithdrawalInput) (*models.WithdrawalRequest, error)
	cancelWithdrawal  func(ctx context.Context, input wallets.CancelWithdrawalInput) (*models.WithdrawalRequest, error)
	listWithdrawals   func(ctx context.Context, filters wallets.WithdrawalFilters, params pagination.Params) (*wallets.WithdrawalList, error)
	redeemGiftCard    func(ctx context.Context, input wallets.RedeemGiftCardInput) (*models.GiftCard, error)
}

func (s *stubWalletService) Deposit(ctx context.Context, input wallets.DepositInput) (*models.LedgerEntry, error) {
	if s.deposit != nil {
		return s.deposit(ctx, input)
	}
	return &models.LedgerEntry{}, nil
}

func (s *stubWalletService) Balance(ctx context.Context, accountID uuid.UUID) (*ledger.Balance, error) {
	if s.balance != nil {
		return s.balance(ctx, accountID)
	}
	return &ledger.Balance{}, nil
}

func (s *stubWalletService) History(ctx context.Context, accountID uuid.UUID, params pagination.Params) (*ledger.EntryList, error) {
	if s.history != nil {
		return s.history(ctx, accountID, params)
	}
	return &ledger.EntryList{}, nil
}

func (s *stubWalletService) RequestWithdrawal(ctx context.Context, input wallets.RequestWithdrawalInput) (*models.WithdrawalRequest, error) {
	if s.requestWithdrawal != nil {
		return s.requestWithdrawal(ctx, input)
	}
	return &models.WithdrawalRequest{}, nil
}

func (s *stubWalletService) CancelWithdrawal(ctx context.Context, input wallets.CancelWithdrawalInput) (*models.WithdrawalRequest, error) {
	if s.cancelWithdrawal != nil {
		return s.cancelWithdrawal(ctx, input)
	}
	return &models.WithdrawalRequest{}, nil
}

func (s *stubWalletService) ProcessWithdrawal(ctx context.Context, input wallets.ProcessWithdrawalInput) (*models.WithdrawalRequest, error) {
	return &models.WithdrawalRequest{}, nil
}

func (s *stubWalletService) GetWithdrawal(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return &models.WithdrawalRequest{}, nil
}

func (s *stubWalletService) ListWithdrawals(ctx context.Context, filters wallets.WithdrawalFilters, params pagination.Params) (*wallets.WithdrawalList, error) {
	if s.listWithdrawals != nil {
		return s.listWithdrawals(ctx, filters, params)
	}
	return &wallets.WithdrawalList{}, nil
}

func (s *stubWalletService) RedeemGiftCard(ctx context.Context, input wallets.RedeemGiftCardInput) (*models.GiftCard, error) {
	if s.redeemGiftCard != nil {
		return s.redeemGiftCard(ctx, input)
	}
	return &models.GiftCard{}, nil
}

func (s *stubWalletService) IssueGiftCard(ctx context.Context, input wallets.IssueGiftCardInput) (*models.GiftCard, error) {
	return &models.GiftCard{}, nil
}

func (s *stubWalletService) AdminCredit(ctx context.Context, input wallets.AdjustInput) ([]models.LedgerEntry, error) {
	return nil, nil
}

func (s *stubWalletService) AdminDebit(ctx context.Context, input wallets.AdjustInput) ([]models.LedgerEntry, error) {
	return nil, nil
}

func (s *stubWalletService) Freeze(ctx context.Context, input wallets.AdjustInput) ([]models.LedgerEntry, error) {
	return nil, nil
}

func (s *stubWalletService) Unfreeze(ctx context.Context, input wallets.AdjustInput) ([]models.LedgerEntry, error) {
	return nil, nil
}

func authedRequest(method, target string, body string, userID uuid.UUID) *http.Request {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestBalanceReturnsProjection(t *testing.T) {
	accountID := uuid.New()
	svc := &stubWalletService{
		balance: func(ctx context.Context, incoming uuid.UUID) (*ledger.Balance, error) {
			if incoming != accountID {
				t.Fatalf("unexpected account id %s", incoming)
			}
			return &ledger.Balance{AccountID: incoming, AvailableCents: 12500}, nil
		},
	}

	handler := Balance(svc, nil)
	req := authedRequest(http.MethodGet, "/api/v1/wallet/balance", "", accountID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data ledger.Balance `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.AvailableCents != 12500 {
		t.Fatalf("unexpected available %d", envelope.Data.AvailableCents)
	}
}

func TestBalanceRequiresAuth(t *testing.T) {
	handler := Balance(&stubWalletService{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet/balance", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestHistoryForwardsPagination(t *testing.T) {
	accountID := uuid.New()
	svc := &stubWalletService{
		history: func(ctx context.Context, incoming uuid.UUID, params pagination.Params) (*ledger.EntryList, error) {
			if incoming != accountID {
				t.Fatalf("unexpected account id %s", incoming)
			}
			if params.Limit != 5 || params.Cursor != "abc" {
				t.Fatalf("unexpected params %+v", params)
			}
			return &ledger.EntryList{NextCursor: "next"}, nil
		},
	}

	handler := History(svc, nil)
	req := authedRequest(http.MethodGet, "/api/v1/wallet/history?limit=5&cursor=abc", "", accountID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestDepositPassesIdempotencyKey(t *testing.T) {
	accountID := uuid.New()
	entryID := uuid.New()
	svc := &stubWalletService{
		deposit: func(ctx context.Context, input wallets.DepositInput) (*models.LedgerEntry, error) {
			if input.AccountID != accountID {
				t.Fatalf("unexpected account id %s", input.AccountID)
			}
			if input.AmountCents != 10000 {
				t.Fatalf("unexpected amount %d", input.AmountCents)
			}
			if input.IdempotencyKey != "dep-1" {
				t.Fatalf("unexpected idempotency key %q", input.IdempotencyKey)
			}
			return &models.LedgerEntry{ID: entryID, AmountCents: 10000}, nil
		},
	}

	handler := Deposit(svc, nil)
	req := authedRequest(http.MethodPost, "/api/v1/wallet/deposit", `{"amount_cents":10000}`, accountID)
	req.Header.Set("Idempotency-Key", "dep-1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	var envelope struct {
		Data models.LedgerEntry `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ID != entryID {
		t.Fatalf("unexpected entry id %s", envelope.Data.ID)
	}
}

func TestDepositRejectsMissingAmount(t *testing.T) {
	handler := Deposit(&stubWalletService{}, nil)
	req := authedRequest(http.MethodPost, "/api/v1/wallet/deposit", `{}`, uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRequestWithdrawalForwardsPayload(t *testing.T) {
	accountID := uuid.New()
	called := false
	svc := &stubWalletService{
		requestWithdrawal: func(ctx context.Context, input wallets.RequestWithdrawalInput) (*models.WithdrawalRequest, error) {
			if input.AccountID != accountID {
				t.Fatalf("unexpected account id %s", input.AccountID)
			}
			if input.AmountCents != 150000 {
				t.Fatalf("unexpected amount %d", input.AmountCents)
			}
			if input.PaymentMethod != "bank_transfer" {
				t.Fatalf("unexpected payment method %q", input.PaymentMethod)
			}
			if input.PaymentDetails["iban"] != "DE89370400440532013000" {
				t.Fatalf("unexpected payment details %v", input.PaymentDetails)
			}
			if input.IdempotencyKey != "wd-1" {
				t.Fatalf("unexpected idempotency key %q", input.IdempotencyKey)
			}
			called = true
			return &models.WithdrawalRequest{ID: uuid.New(), Status: enums.WithdrawalStatusPending}, nil
		},
	}

	handler := RequestWithdrawal(svc, nil)
	body := `{"amount_cents":150000,"payment_method":"bank_transfer","payment_details":{"iban":"DE89370400440532013000"}}`
	req := authedRequest(http.MethodPost, "/api/v1/wallet/withdrawals", body, accountID)
	req.Header.Set("Idempotency-Key", "wd-1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	if !called {
		t.Fatalf("service not invoked")
	}
}

func TestCancelWithdrawalParsesPath(t *testing.T) {
	accountID := uuid.New()
	withdrawalID := uuid.New()
	called := false
	svc := &stubWalletService{
		cancelWithdrawal: func(ctx context.Context, input wallets.CancelWithdrawalInput) (*models.WithdrawalRequest, error) {
			if input.AccountID != accountID {
				t.Fatalf("unexpected account id %s", input.AccountID)
			}
			if input.WithdrawalID != withdrawalID {
				t.Fatalf("unexpected withdrawal id %s", input.WithdrawalID)
			}
			called = true
			return &models.WithdrawalRequest{ID: withdrawalID, Status: enums.WithdrawalStatusCancelled}, nil
		},
	}

	handler := CancelWithdrawal(svc, nil)
	req := authedRequest(http.MethodPost, "/api/v1/wallet/withdrawals/"+withdrawalID.String()+"/cancel", "", accountID)
	req = withURLParam(req, "withdrawalId", withdrawalID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !called {
		t.Fatalf("service not invoked")
	}
}

func TestCancelWithdrawalRejectsBadID(t *testing.T) {
	handler := CancelWithdrawal(&stubWalletService{}, nil)
	req := authedRequest(http.MethodPost, "/api/v1/wallet/withdrawals/nope/cancel", "", uuid.New())
	req = withURLParam(req, "withdrawalId", "nope")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestListWithdrawalsScopesToCaller(t *testing.T) {
	accountID := uuid.New()
	svc := &stubWalletService{
		listWithdrawals: func(ctx context.Context, filters wallets.WithdrawalFilters, params pagination.Params) (*wallets.WithdrawalList, error) {
			if filters.AccountID == nil || *filters.AccountID != accountID {
				t.Fatalf("expected account filter %s got %v", accountID, filters.AccountID)
			}
			if filters.Status == nil || *filters.Status != enums.WithdrawalStatusPending {
				t.Fatalf("status filter not parsed")
			}
			return &wallets.WithdrawalList{}, nil
		},
	}

	handler := ListWithdrawals(svc, nil)
	req := authedRequest(http.MethodGet, "/api/v1/wallet/withdrawals?status=pending", "", accountID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestListWithdrawalsRejectsBadStatus(t *testing.T) {
	handler := ListWithdrawals(&stubWalletService{}, nil)
	req := authedRequest(http.MethodGet, "/api/v1/wallet/withdrawals?status=sideways", "", uuid.New())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRedeemGiftCardForwardsCode(t *testing.T) {
	accountID := uuid.New()
	svc := &stubWalletService{
		redeemGiftCard: func(ctx context.Context, input wallets.RedeemGiftCardInput) (*models.GiftCard, error) {
			if input.AccountID != accountID {
				t.Fatalf("unexpected account id %s", input.AccountID)
			}
			if input.Code != "GIFT-AAAA-BBBB-CCCC" {
				t.Fatalf("unexpected code %q", input.Code)
			}
			if input.IdempotencyKey != "gc-1" {
				t.Fatalf("unexpected idempotency key %q", input.IdempotencyKey)
			}
			return &models.GiftCard{ID: uuid.New(), Status: enums.GiftCardStatusRedeemed}, nil
		},
	}

	handler := RedeemGiftCard(svc, nil)
	req := authedRequest(http.MethodPost, "/api/v1/wallet/giftcards/redeem", `{"code":"GIFT-AAAA-BBBB-CCCC"}`, accountID)
	req.Header.Set("Idempotency-Key", "gc-1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}
