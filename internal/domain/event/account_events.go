package event

import "time"

// PayoutAccountCreated event - fired when a seller gets its payout account row
type PayoutAccountCreated struct {
	AccountID string    `json:"account_id"`
	SellerID  string    `json:"seller_id"`
	Provider  string    `json:"provider"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *PayoutAccountCreated) EventType() string     { return "PayoutAccountCreated" }
func (e *PayoutAccountCreated) AggregateID() string   { return e.AccountID }
func (e *PayoutAccountCreated) OccurredAt() time.Time { return e.Timestamp }
func (e *PayoutAccountCreated) Version() int          { return 1 }

// PayoutAccountLinked event - fired when the provider side account exists
type PayoutAccountLinked struct {
	AccountID    string    `json:"account_id"`
	SellerID     string    `json:"seller_id"`
	Provider     string    `json:"provider"`
	ReferenceID  string    `json:"reference_id"`
	EventVersion int       `json:"version"`
	Timestamp    time.Time `json:"timestamp"`
}

func (e *PayoutAccountLinked) EventType() string     { return "PayoutAccountLinked" }
func (e *PayoutAccountLinked) AggregateID() string   { return e.AccountID }
func (e *PayoutAccountLinked) OccurredAt() time.Time { return e.Timestamp }
func (e *PayoutAccountLinked) Version() int          { return e.EventVersion }

// PayoutAccountStatusChanged event - fired on every provider driven transition
type PayoutAccountStatusChanged struct {
	AccountID    string    `json:"account_id"`
	SellerID     string    `json:"seller_id"`
	FromStatus   string    `json:"from_status"`
	ToStatus     string    `json:"to_status"`
	EventVersion int       `json:"version"`
	Timestamp    time.Time `json:"timestamp"`
}

func (e *PayoutAccountStatusChanged) EventType() string     { return "PayoutAccountStatusChanged" }
func (e *PayoutAccountStatusChanged) AggregateID() string   { return e.AccountID }
func (e *PayoutAccountStatusChanged) OccurredAt() time.Time { return e.Timestamp }
func (e *PayoutAccountStatusChanged) Version() int          { return e.EventVersion }

// OnboardingStarted event - fired when a provider hosted onboarding link is issued
type OnboardingStarted struct {
	OnboardingID string    `json:"onboarding_id"`
	AccountID    string    `json:"account_id"`
	Timestamp    time.Time `json:"timestamp"`
}

func (e *OnboardingStarted) EventType() string     { return "OnboardingStarted" }
func (e *OnboardingStarted) AggregateID() string   { return e.AccountID }
func (e *OnboardingStarted) OccurredAt() time.Time { return e.Timestamp }
func (e *OnboardingStarted) Version() int          { return 1 }
