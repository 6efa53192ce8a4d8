package mongo

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"marketplace-settlement/internal/domain/aggregate"
	"marketplace-settlement/internal/domain/repository"
)

func TestDecimal128RoundTrip(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"0", "10.50", "-3.333", "0.0000001", "123456789012.34"} {
		d := decimal.RequireFromString(s)
		got := fromDecimal128(toDecimal128(d))
		if !got.Equal(d) {
			t.Fatalf("round trip of %s gave %s", s, got)
		}
	}
}

func TestPayoutDocumentRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	payout := aggregate.ReconstructPayout(
		"payout-1", "account-1", "order-1", decimal.RequireFromString("42.10"), "USD",
		aggregate.PayoutStatusPaid, []byte(`{"id":"tr_1"}`), "tr_1", "key-1", "",
		decimal.RequireFromString("2.10"), 3, &now, &now, now, now,
	)

	got := newPayoutDocument(payout).toAggregate()
	if got.ID() != payout.ID() || got.Status() != payout.Status() || got.ProviderReference() != "tr_1" {
		t.Fatalf("unexpected payout %+v", got)
	}
	if !got.Amount().Equal(payout.Amount()) || !got.ReversedAmount().Equal(payout.ReversedAmount()) {
		t.Fatalf("amounts changed: %s/%s", got.Amount(), got.ReversedAmount())
	}
	if string(got.Data()) != `{"id":"tr_1"}` {
		t.Fatalf("data = %s", got.Data())
	}
}

func TestRateDocumentKeepsAmountSets(t *testing.T) {
	t.Parallel()

	pct := decimal.NewFromInt(10)
	min, _ := aggregate.NewAmountSet("min-1", map[string]decimal.Decimal{"usd": decimal.NewFromInt(1)})
	rate, err := aggregate.NewCommissionRate(aggregate.CommissionRateSpec{
		ID:             "rate-1",
		Type:           aggregate.RateTypePercentage,
		PercentageRate: &pct,
		MinAmount:      min,
	})
	if err != nil {
		t.Fatalf("new rate: %v", err)
	}

	got := newRateDocument(rate).toAggregate()
	if !got.SameTerms(rate) {
		t.Fatalf("rate terms changed after round trip")
	}
}


func TestMapError(t *testing.T) {
	t.Parallel()

	if err := mapError(mongo.ErrNoDocuments, "payout %s", "x"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	dup := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key"}}}
	if err := mapError(dup, "line"); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	transient := mongo.CommandError{Code: 112, Name: "WriteConflict", Labels: []string{transientTransactionLabel}}
	if err := mapError(fmt.Errorf("wrapped: %w", transient), "commit"); !errors.Is(err, repository.ErrTransactionConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	if err := mapError(nil, "nothing"); err != nil {
		t.Fatalf("nil error mapped to %v", err)
	}
}

func TestTransactionsIndexedByReference(t *testing.T) {
	t.Parallel()

	for _, model := range settlementIndexes()[collectionTransactions] {
		keys, ok := model.Keys.(bson.D)
		if ok && len(keys) == 2 && keys[0].Key == "reference" && keys[1].Key == "reference_id" {
			return
		}
	}
	t.Fatalf("payout transactions have no (reference, reference_id) index")
}
