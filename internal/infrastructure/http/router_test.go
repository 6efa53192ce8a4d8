package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketplace-settlement/internal/application/command"
	"marketplace-settlement/internal/application/query"
	"marketplace-settlement/internal/application/services"
	"marketplace-settlement/pkg/errors"
	"marketplace-settlement/pkg/jwt"
	"marketplace-settlement/pkg/middleware"
)

type fakePayouts struct {
	requested  []*command.RequestPayout
	reversed   []*command.ReversePayout
	webhooks   []*command.ProcessWebhookEvent
	payouts    map[string]*query.PayoutReadModel
	webhookErr error
}

func newFakePayouts() *fakePayouts {
	return &fakePayouts{payouts: map[string]*query.PayoutReadModel{
		"p-own":   {ID: "p-own", AccountID: "acct-seller-1", Status: "paid"},
		"p-other": {ID: "p-other", AccountID: "acct-seller-2", Status: "paid"},
	}}
}

func (f *fakePayouts) CreatePayoutAccount(ctx context.Context, cmd *command.CreatePayoutAccount) (*services.OnboardingResponse, error) {
	return &services.OnboardingResponse{
		Account: &query.AccountReadModel{ID: "acct-" + cmd.SellerID, SellerID: cmd.SellerID, Status: "pending"},
		URL:     "https://connect.example/onboard",
	}, nil
}

func (f *fakePayouts) SyncAccountStatus(ctx context.Context, cmd *command.SyncAccountStatus) (*query.AccountReadModel, error) {
	return &query.AccountReadModel{ID: "acct-" + cmd.SellerID, SellerID: cmd.SellerID, Status: "active"}, nil
}

func (f *fakePayouts) GetAccountBySeller(ctx context.Context, sellerID string) (*query.AccountReadModel, error) {
	if sellerID == "seller-without-account" {
		return nil, errors.NewNotFoundError("payout account")
	}
	return &query.AccountReadModel{ID: "acct-" + sellerID, SellerID: sellerID, Status: "active"}, nil
}

func (f *fakePayouts) GetOnboarding(ctx context.Context, accountID string) (*query.OnboardingReadModel, error) {
	return nil, errors.NewNotFoundError("onboarding")
}

func (f *fakePayouts) ApplyBalanceDelta(ctx context.Context, cmd *command.ApplyBalanceDelta) (*query.BalanceReadModel, error) {
	return &query.BalanceReadModel{AccountID: cmd.AccountID, CurrencyCode: cmd.CurrencyCode, Balance: cmd.Amount}, nil
}

func (f *fakePayouts) GetBalances(ctx context.Context, accountID string) ([]*query.BalanceReadModel, error) {
	return []*query.BalanceReadModel{{AccountID: accountID, CurrencyCode: "usd", Balance: decimal.NewFromInt(90)}}, nil
}

func (f *fakePayouts) ListTransactions(ctx context.Context, q *query.ListTransactionsQuery) ([]*query.TransactionReadModel, error) {
	return nil, nil
}

func (f *fakePayouts) Reconcile(ctx context.Context, accountID, currencyCode string) ([]*query.ReconciliationReport, error) {
	return []*query.ReconciliationReport{{AccountID: accountID, CurrencyCode: "usd", Consistent: true}}, nil
}

func (f *fakePayouts) RequestPayout(ctx context.Context, cmd *command.RequestPayout) (*query.PayoutReadModel, error) {
	f.requested = append(f.requested, cmd)
	return &query.PayoutReadModel{ID: "p-new", AccountID: cmd.AccountID, Amount: cmd.Amount, Status: "processing"}, nil
}

func (f *fakePayouts) ReversePayout(ctx context.Context, cmd *command.ReversePayout) ([]*query.PayoutReadModel, error) {
	f.reversed = append(f.reversed, cmd)
	return []*query.PayoutReadModel{{ID: cmd.PayoutID, Status: "canceled"}}, nil
}

func (f *fakePayouts) GetPayout(ctx context.Context, payoutID string) (*query.PayoutReadModel, error) {
	if p, ok := f.payouts[payoutID]; ok {
		return p, nil
	}
	return nil, errors.NewNotFoundError("payout")
}

func (f *fakePayouts) ListPayouts(ctx context.Context, accountID string, offset, limit int) ([]*query.PayoutReadModel, error) {
	return nil, nil
}

func (f *fakePayouts) ProcessWebhook(ctx context.Context, cmd *command.ProcessWebhookEvent) (command.WebhookOutcome, error) {
	f.webhooks = append(f.webhooks, cmd)
	if f.webhookErr != nil {
		return "", f.webhookErr
	}
	return command.WebhookApplied, nil
}

type fakeCommission struct {
	upserted []*command.UpsertCommissionRule
}

func (f *fakeCommission) UpsertRule(ctx context.Context, cmd *command.UpsertCommissionRule) (*query.RuleReadModel, error) {
	f.upserted = append(f.upserted, cmd)
	return &query.RuleReadModel{ID: "rule-1", Name: cmd.Name, Reference: cmd.Reference}, nil
}

func (f *fakeCommission) ListRules(ctx context.Context, offset, limit int) ([]*query.RuleReadModel, error) {
	return nil, nil
}

func (f *fakeCommission) ListOrderCommission(ctx context.Context, orderID string, includeDeleted bool) ([]*query.CommissionLineReadModel, error) {
	return []*query.CommissionLineReadModel{{OrderID: orderID}}, nil
}

type fakeOrders struct {
	captured []*command.ComputeAndRecordCommission
}

func (f *fakeOrders) Captured(ctx context.Context, cmd *command.ComputeAndRecordCommission) ([]*query.CommissionLineReadModel, error) {
	f.captured = append(f.captured, cmd)
	return nil, nil
}

func (f *fakeOrders) Canceled(ctx context.Context, evt *services.OrderCanceled) ([]*query.PayoutReadModel, error) {
	return nil, nil
}

type testServer struct {
	handler    http.Handler
	jwt        *jwt.JWTManager
	payouts    *fakePayouts
	commission *fakeCommission
	orders     *fakeOrders
}

func newTestServer() *testServer {
	payouts := newFakePayouts()
	commission := &fakeCommission{}
	orders := &fakeOrders{}
	manager := jwt.NewJWTManager("test-secret", "marketplace")
	handler := NewRouter(RouterConfig{
		Vendor:         NewVendorPayoutController(payouts),
		Admin:          NewAdminController(commission, payouts),
		Orders:         NewOrderController(orders),
		Webhooks:       NewWebhookController(payouts),
		JWTManager:     manager,
		RateLimiter:    middleware.NewRateLimiter(100, 100),
		RequestTimeout: 5 * time.Second,
		Logger:         zap.NewNop(),
	})
	return &testServer{handler: handler, jwt: manager, payouts: payouts, commission: commission, orders: orders}
}

func (s *testServer) do(t *testing.T, method, path, role, sellerID string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if role != "" {
		token, err := s.jwt.GenerateToken("user-1", role, sellerID, time.Hour)
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	rec := s.do(t, http.MethodGet, "/health", "", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a request id header")
	}
}

func TestVendorRoutesRequireSellerToken(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	cases := []struct {
		name     string
		role     string
		sellerID string
		want     int
	}{
		{"no token", "", "", http.StatusUnauthorized},
		{"admin token", jwt.RoleAdmin, "", http.StatusForbidden},
		{"seller token without seller", jwt.RoleSeller, "", http.StatusForbidden},
		{"seller", jwt.RoleSeller, "seller-1", http.StatusOK},
	}
	for _, tc := range cases {
		rec := s.do(t, http.MethodGet, "/vendor/balances", tc.role, tc.sellerID, nil, nil)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.want, rec.Code, rec.Body.String())
		}
	}
}

func TestRequestPayoutUsesTokenSellerAndIdempotencyKey(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	body := []byte(`{"amount":"25.50","currency_code":"USD","account_id":"someone-else"}`)
	rec := s.do(t, http.MethodPost, "/vendor/payouts", jwt.RoleSeller, "seller-1", body, map[string]string{"Idempotency-Key": "key-123"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	if len(s.payouts.requested) != 1 {
		t.Fatalf("expected one payout request, got %d", len(s.payouts.requested))
	}
	cmd := s.payouts.requested[0]
	if cmd.AccountID != "acct-seller-1" {
		t.Fatalf("expected account resolved from token, got %s", cmd.AccountID)
	}
	if cmd.IdempotencyKey != "key-123" || !cmd.Amount.Equal(decimal.RequireFromString("25.5")) {
		t.Fatalf("unexpected command %+v", cmd)
	}
}

func TestRequestPayoutValidatesBody(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	rec := s.do(t, http.MethodPost, "/vendor/payouts", jwt.RoleSeller, "seller-1", []byte(`{"amount":"10"}`), map[string]string{"Idempotency-Key": "k"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if errBody, _ := body["error"].(map[string]interface{}); errBody["code"] != errors.CodeValidation {
		t.Fatalf("unexpected error body %v", body)
	}
	if len(s.payouts.requested) != 0 {
		t.Fatalf("invalid request must not reach the service")
	}
}

func TestRequestPayoutRequiresIdempotencyKey(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	body := []byte(`{"amount":"10","currency_code":"usd"}`)
	for _, headers := range []map[string]string{nil, {"Idempotency-Key": "   "}} {
		rec := s.do(t, http.MethodPost, "/vendor/payouts", jwt.RoleSeller, "seller-1", body, headers)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 without a key, got %d", rec.Code)
		}
		env := decodeEnvelope(t, rec)
		if errBody, _ := env["error"].(map[string]interface{}); errBody["code"] != errors.CodeValidation {
			t.Fatalf("unexpected error body %v", env)
		}
	}
	if len(s.payouts.requested) != 0 {
		t.Fatalf("a keyless request must not reach the service")
	}
}

func TestGetPayoutHidesOtherSellers(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	if rec := s.do(t, http.MethodGet, "/vendor/payouts/p-own", jwt.RoleSeller, "seller-1", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected own payout, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/vendor/payouts/p-other", jwt.RoleSeller, "seller-1", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another seller's payout, got %d", rec.Code)
	}
}

func TestSellerWithoutAccount(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	rec := s.do(t, http.MethodGet, "/vendor/payout-account", jwt.RoleSeller, "seller-without-account", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/vendor/payout-account", jwt.RoleSeller, "seller-without-account", nil, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected onboarding to start, got %d (%s)", rec.Code, rec.Body.String())
	}
	data, _ := decodeEnvelope(t, rec)["data"].(map[string]interface{})
	if data["url"] != "https://connect.example/onboard" {
		t.Fatalf("unexpected onboarding response %v", data)
	}
}

func TestWebhookPassesRawBody(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	payload := []byte(`{"id":"evt_1","type":"transfer.created"}`)
	rec := s.do(t, http.MethodPost, "/webhooks/payouts/stripe", "", "", payload, map[string]string{"Stripe-Signature": "t=1,v1=abc"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	got := s.payouts.webhooks[0]
	if got.Provider != "stripe" || !bytes.Equal(got.Body, payload) {
		t.Fatalf("unexpected webhook command %+v", got)
	}
	if got.Headers.Get("Stripe-Signature") != "t=1,v1=abc" {
		t.Fatalf("signature header not forwarded")
	}
}

func TestWebhookSignatureFailureIsBadRequest(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.payouts.webhookErr = errors.NewValidationError("invalid webhook signature")
	rec := s.do(t, http.MethodPost, "/webhooks/payouts/stripe", "", "", []byte(`{}`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAdminReversePayout(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	if rec := s.do(t, http.MethodPost, "/admin/payouts/p-own/reverse", jwt.RoleSeller, "seller-1", nil, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("sellers must not reverse payouts, got %d", rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/admin/payouts/p-own/reverse", jwt.RoleAdmin, "", []byte(`{"amount":"5"}`), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	cmd := s.payouts.reversed[0]
	if cmd.PayoutID != "p-own" || !cmd.Amount.Equal(decimal.NewFromInt(5)) || cmd.Reason == "" {
		t.Fatalf("unexpected reverse command %+v", cmd)
	}
}

func TestAdminUpsertRule(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	body := []byte(`{"name":"Default","reference":"global","is_active":true,"rate":{"type":"percentage","percentage_rate":"10"}}`)
	rec := s.do(t, http.MethodPost, "/admin/commission/rules", jwt.RoleAdmin, "", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if got := s.commission.upserted[0]; got.Rate.PercentageRate == nil || !got.Rate.PercentageRate.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected upsert %+v", got)
	}

	rec = s.do(t, http.MethodPost, "/admin/commission/rules", jwt.RoleAdmin, "", []byte(`{"name":"x","reference":"planet"}`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown reference, got %d", rec.Code)
	}
}

func TestInternalOrderRoutesRequireServiceRole(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	body := []byte(`{"order_id":"o-1","seller_id":"seller-1","items":[{"item_line_id":"l-1","product_id":"p-1","quantity":1,"unit_price":"10","currency_code":"USD"}]}`)

	if rec := s.do(t, http.MethodPost, "/internal/orders/captured", jwt.RoleAdmin, "", body, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	rec := s.do(t, http.MethodPost, "/internal/orders/captured", jwt.RoleService, "", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(s.orders.captured) != 1 || s.orders.captured[0].Items[0].ItemLineID != "l-1" {
		t.Fatalf("unexpected capture %+v", s.orders.captured)
	}
}
