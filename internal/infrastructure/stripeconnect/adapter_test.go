package stripeconnect

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/provider"
)

const testWebhookSecret = "whsec_test"

type recordedRequest struct {
	Method         string
	Path           string
	IdempotencyKey string
	Form           map[string]string
}

type fakeStripe struct {
	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]string
	status   int
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	form := make(map[string]string, len(r.Form))
	for k := range r.Form {
		form[k] = r.Form.Get(k)
	}

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method:         r.Method,
		Path:           r.URL.Path,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Form:           form,
	})
	status := f.status
	body, ok := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"no such route"}}`))
		return
	}
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (f *fakeStripe) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestAdapter(t *testing.T, routes map[string]string) (*Adapter, *fakeStripe) {
	t.Helper()
	fake := &fakeStripe{routes: routes}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	adapter, err := NewAdapter(Config{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
		Country:       "US",
		ReturnURL:     "https://shop.test/return",
		RefreshURL:    "https://shop.test/refresh",
		BackendURL:    server.URL,
		HTTPClient:    server.Client(),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter, fake
}

func TestToMinorUnits(t *testing.T) {
	t.Parallel()

	cases := []struct {
		amount   string
		currency string
		want     int64
	}{
		{"10.50", "USD", 1050},
		{"0.01", "eur", 1},
		{"1500", "JPY", 1500},
		{"12.345", "KWD", 12345},
	}
	for _, tc := range cases {
		got := ToMinorUnits(decimal.RequireFromString(tc.amount), tc.currency)
		if got != tc.want {
			t.Fatalf("ToMinorUnits(%s %s) = %d, want %d", tc.amount, tc.currency, got, tc.want)
		}
	}
}

func TestCreatePayoutSendsTransfer(t *testing.T) {
	t.Parallel()

	adapter, fake := newTestAdapter(t, map[string]string{
		"POST /v1/transfers": `{"id":"tr_123","object":"transfer","amount":1050,"currency":"usd","reversed":false}`,
	})

	result, err := adapter.CreatePayout(context.Background(), provider.CreatePayoutInput{
		PayoutID:     "payout-1",
		AccountID:    "account-1",
		OrderID:      "order-1",
		ReferenceID:  "acct_123",
		Amount:       decimal.RequireFromString("10.50"),
		CurrencyCode: "USD",
	}, "payout_payout-1")
	if err != nil {
		t.Fatalf("create payout: %v", err)
	}
	if result.ID != "tr_123" || result.Status != aggregate.PayoutStatusProcessing {
		t.Fatalf("unexpected result %+v", result)
	}

	req := fake.last()
	if req.IdempotencyKey != "payout_payout-1" {
		t.Fatalf("idempotency key = %q", req.IdempotencyKey)
	}
	if req.Form["amount"] != "1050" || req.Form["currency"] != "usd" || req.Form["destination"] != "acct_123" {
		t.Fatalf("unexpected transfer form %v", req.Form)
	}
	if req.Form["transfer_group"] != "order-1" || req.Form["metadata[payout_id]"] != "payout-1" {
		t.Fatalf("missing transfer group or metadata: %v", req.Form)
	}
}

func TestCreatePayoutWrapsStripeErrors(t *testing.T) {
	t.Parallel()

	adapter, fake := newTestAdapter(t, map[string]string{
		"POST /v1/transfers": `{"error":{"type":"invalid_request_error","code":"balance_insufficient","message":"Insufficient funds"}}`,
	})
	fake.status = http.StatusBadRequest

	_, err := adapter.CreatePayout(context.Background(), provider.CreatePayoutInput{
		PayoutID:     "payout-1",
		ReferenceID:  "acct_123",
		Amount:       decimal.NewFromInt(5),
		CurrencyCode: "usd",
	}, "payout_payout-1")

	var pe *provider.Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if pe.Code != "balance_insufficient" || pe.Timeout {
		t.Fatalf("unexpected provider error %+v", pe)
	}
}

func TestCreatePayoutAccountAndOnboarding(t *testing.T) {
	t.Parallel()

	adapter, fake := newTestAdapter(t, map[string]string{
		"POST /v1/accounts":      `{"id":"acct_123","object":"account","payouts_enabled":false,"details_submitted":false}`,
		"POST /v1/account_links": `{"object":"account_link","url":"https://connect.stripe.test/setup/abc","expires_at":1700000000}`,
	})

	account, err := adapter.CreatePayoutAccount(context.Background(), provider.CreateAccountInput{
		AccountID: "account-1",
		SellerID:  "seller-1",
		Context:   []byte(`{"email":"seller@shop.test"}`),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if account.ID != "acct_123" || account.Status != aggregate.AccountStatusPending {
		t.Fatalf("unexpected account %+v", account)
	}
	req := fake.last()
	if req.Form["type"] != "express" || req.Form["capabilities[transfers][requested]"] != "true" {
		t.Fatalf("unexpected account form %v", req.Form)
	}
	if req.IdempotencyKey != "account_account-1" || req.Form["metadata[payout_account_id]"] != "account-1" {
		t.Fatalf("missing idempotency key or metadata: %+v", req)
	}

	onboarding, err := adapter.CreateOnboarding(context.Background(), provider.OnboardingInput{
		AccountID:   "account-1",
		ReferenceID: "acct_123",
	})
	if err != nil {
		t.Fatalf("create onboarding: %v", err)
	}
	if onboarding.URL != "https://connect.stripe.test/setup/abc" {
		t.Fatalf("onboarding url = %q", onboarding.URL)
	}
	if got := fake.last().Form["type"]; got != "account_onboarding" {
		t.Fatalf("account link type = %q", got)
	}
}

func TestGetAccountStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want aggregate.AccountStatus
	}{
		{"active", `{"id":"acct_1","payouts_enabled":true,"details_submitted":true}`, aggregate.AccountStatusActive},
		{"restricted", `{"id":"acct_1","payouts_enabled":false,"details_submitted":true}`, aggregate.AccountStatusRestricted},
		{"pending", `{"id":"acct_1","payouts_enabled":false,"details_submitted":false}`, aggregate.AccountStatusPending},
		{"rejected", `{"id":"acct_1","payouts_enabled":false,"details_submitted":true,"requirements":{"disabled_reason":"rejected.fraud"}}`, aggregate.AccountStatusRejected},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			adapter, _ := newTestAdapter(t, map[string]string{"GET /v1/accounts/acct_1": tc.body})
			result, err := adapter.GetAccountStatus(context.Background(), provider.AccountStatusInput{ReferenceID: "acct_1"})
			if err != nil {
				t.Fatalf("get account status: %v", err)
			}
			if result.Status != tc.want {
				t.Fatalf("status = %s, want %s", result.Status, tc.want)
			}
		})
	}
}

func TestGetPayoutStatusFindsTransferByMetadata(t *testing.T) {
	t.Parallel()

	adapter, _ := newTestAdapter(t, map[string]string{
		"GET /v1/transfers": `{"object":"list","has_more":false,"data":[
			{"id":"tr_other","object":"transfer","metadata":{"payout_id":"payout-2"}},
			{"id":"tr_1","object":"transfer","reversed":true,"metadata":{"payout_id":"payout-1"}}
		]}`,
	})

	result, err := adapter.GetPayoutStatus(context.Background(), provider.PayoutStatusInput{
		PayoutID:         "payout-1",
		AccountReference: "acct_123",
	})
	if err != nil {
		t.Fatalf("get payout status: %v", err)
	}
	if result.Status != aggregate.PayoutStatusCanceled {
		t.Fatalf("status = %s, want canceled", result.Status)
	}

	result, err = adapter.GetPayoutStatus(context.Background(), provider.PayoutStatusInput{
		PayoutID:         "payout-9",
		AccountReference: "acct_123",
	})
	if err != nil {
		t.Fatalf("get payout status: %v", err)
	}
	if result.Status != aggregate.PayoutStatusPending {
		t.Fatalf("unknown transfer should stay pending, got %s", result.Status)
	}
}

func signedPayload(t *testing.T, secret string, payload []byte) http.Header {
	t.Helper()
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "."))
	mac.Write(payload)
	h := http.Header{}
	h.Set("Stripe-Signature", fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	return h
}

func TestWebhookMapping(t *testing.T) {
	t.Parallel()

	adapter, _ := newTestAdapter(t, nil)

	cases := []struct {
		name       string
		payload    string
		wantAction provider.WebhookAction
		check      func(t *testing.T, r *provider.WebhookResult)
	}{
		{
			name:       "transfer created",
			payload:    `{"id":"evt_1","object":"event","type":"transfer.created","data":{"object":{"id":"tr_1","object":"transfer","metadata":{"payout_id":"payout-1"}}}}`,
			wantAction: provider.ActionPayoutPaid,
			check: func(t *testing.T, r *provider.WebhookResult) {
				if r.PayoutID != "payout-1" || r.PayoutReference != "tr_1" {
					t.Fatalf("unexpected payout target %+v", r)
				}
			},
		},
		{
			name:       "transfer reversed",
			payload:    `{"id":"evt_2","object":"event","type":"transfer.reversed","data":{"object":{"id":"tr_1","object":"transfer","reversed":true,"metadata":{"payout_id":"payout-1"}}}}`,
			wantAction: provider.ActionPayoutCanceled,
		},
		{
			name:       "account activated",
			payload:    `{"id":"evt_3","object":"event","type":"account.updated","data":{"object":{"id":"acct_1","object":"account","payouts_enabled":true,"details_submitted":true,"metadata":{"payout_account_id":"account-1"}}}}`,
			wantAction: provider.ActionAccountActivated,
			check: func(t *testing.T, r *provider.WebhookResult) {
				if r.AccountID != "account-1" || r.AccountReference != "acct_1" {
					t.Fatalf("unexpected account target %+v", r)
				}
			},
		},
		{
			name:       "payout without our metadata",
			payload:    `{"id":"evt_4","object":"event","type":"payout.paid","data":{"object":{"id":"po_1","object":"payout"}}}`,
			wantAction: provider.WebhookAction("payout.paid"),
			check: func(t *testing.T, r *provider.WebhookResult) {
				if r.PayoutID != "" {
					t.Fatalf("foreign payout should carry no target, got %+v", r)
				}
			},
		},
		{
			name:       "unknown type",
			payload:    `{"id":"evt_5","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge"}}}`,
			wantAction: provider.WebhookAction("charge.refunded"),
		},
	}

	for _, tc := range cases {
		body := []byte(tc.payload)
		result, err := adapter.GetWebhookActionAndData(context.Background(), provider.WebhookPayload{
			Body:    body,
			Headers: signedPayload(t, testWebhookSecret, body),
		})
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if result.Action != tc.wantAction {
			t.Fatalf("%s: action = %s, want %s", tc.name, result.Action, tc.wantAction)
		}
		if tc.check != nil {
			tc.check(t, result)
		}
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	t.Parallel()

	adapter, _ := newTestAdapter(t, nil)
	body := []byte(`{"id":"evt_1","object":"event","type":"transfer.created","data":{"object":{"id":"tr_1"}}}`)

	_, err := adapter.GetWebhookActionAndData(context.Background(), provider.WebhookPayload{
		Body:    body,
		Headers: signedPayload(t, "whsec_wrong", body),
	})
	if !errors.Is(err, provider.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}
