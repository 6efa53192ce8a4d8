package aggregate

import (
	"encoding/json"
	"fmt"
	"time"

	"marketplace-settlement/internal/domain/event"
)

// AccountStatus represents the provider-side standing of a seller's payout account
type AccountStatus string

const (
	AccountStatusPending    AccountStatus = "pending"    // Created, provider onboarding not finished
	AccountStatusActive     AccountStatus = "active"     // Provider accepts payouts
	AccountStatusRestricted AccountStatus = "restricted" // Provider requires more information
	AccountStatusRejected   AccountStatus = "rejected"   // Terminal, no payouts ever again
)

var accountTransitions = map[AccountStatus][]AccountStatus{
	AccountStatusPending:    {AccountStatusActive, AccountStatusRestricted},
	AccountStatusActive:     {AccountStatusRestricted, AccountStatusRejected},
	AccountStatusRestricted: {AccountStatusActive, AccountStatusRejected},
	AccountStatusRejected:   {},
}

// ParseAccountStatus converts a stored string into an AccountStatus
func ParseAccountStatus(s string) (AccountStatus, error) {
	status := AccountStatus(s)
	if _, ok := accountTransitions[status]; !ok {
		return "", fmt.Errorf("unknown account status %q", s)
	}
	return status, nil
}

// CanTransitionTo reports whether the state machine allows moving to next
func (s AccountStatus) CanTransitionTo(next AccountStatus) bool {
	for _, allowed := range accountTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PayoutAccount is a seller's account at the payout provider. One per seller.
type PayoutAccount struct {
	id          string
	sellerID    string
	provider    string
	referenceID string
	status      AccountStatus
	data        json.RawMessage
	context     json.RawMessage
	version     int
	createdAt   time.Time
	updatedAt   time.Time

	uncommittedEvents []event.DomainEvent
}

// NewPayoutAccount creates a pending account. No provider call happens here.
func NewPayoutAccount(id, sellerID, provider string, context json.RawMessage) (*PayoutAccount, error) {
	if id == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}
	if sellerID == "" {
		return nil, fmt.Errorf("seller ID cannot be empty")
	}
	if provider == "" {
		return nil, fmt.Errorf("provider cannot be empty")
	}

	now := time.Now().UTC()
	account := &PayoutAccount{
		id:        id,
		sellerID:  sellerID,
		provider:  provider,
		status:    AccountStatusPending,
		context:   context,
		version:   1,
		createdAt: now,
		updatedAt: now,
	}
	account.raiseEvent(&event.PayoutAccountCreated{
		AccountID: id,
		SellerID:  sellerID,
		Provider:  provider,
		Timestamp: now,
	})
	return account, nil
}

// ReconstructPayoutAccount rebuilds an account from storage
func ReconstructPayoutAccount(
	id, sellerID, provider, referenceID string,
	status AccountStatus,
	data, context json.RawMessage,
	version int,
	createdAt, updatedAt time.Time,
) *PayoutAccount {
	return &PayoutAccount{
		id:          id,
		sellerID:    sellerID,
		provider:    provider,
		referenceID: referenceID,
		status:      status,
		data:        data,
		context:     context,
		version:     version,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// LinkProvider stores the provider's account id and opaque payload
func (a *PayoutAccount) LinkProvider(provider, referenceID string, data json.RawMessage) error {
	if referenceID == "" {
		return fmt.Errorf("provider reference ID is required")
	}
	if a.referenceID != "" && a.referenceID != referenceID {
		return fmt.Errorf("account %s is already linked to %s", a.id, a.referenceID)
	}
	if a.status == AccountStatusRejected {
		return fmt.Errorf("%w: account %s is rejected", ErrInvalidTransition, a.id)
	}

	now := time.Now().UTC()
	a.provider = provider
	a.referenceID = referenceID
	a.data = data
	a.version++
	a.updatedAt = now

	a.raiseEvent(&event.PayoutAccountLinked{
		AccountID:    a.id,
		SellerID:     a.sellerID,
		Provider:     provider,
		ReferenceID:  referenceID,
		EventVersion: a.version,
		Timestamp:    now,
	})
	return nil
}

// TransitionTo applies a provider reported status. Reporting the current status is a no-op
// and returns false.
func (a *PayoutAccount) TransitionTo(next AccountStatus) (bool, error) {
	if next == a.status {
		return false, nil
	}
	if !a.status.CanTransitionTo(next) {
		return false, fmt.Errorf("%w: account %s cannot move from %s to %s", ErrInvalidTransition, a.id, a.status, next)
	}

	now := time.Now().UTC()
	from := a.status
	a.status = next
	a.version++
	a.updatedAt = now

	a.raiseEvent(&event.PayoutAccountStatusChanged{
		AccountID:    a.id,
		SellerID:     a.sellerID,
		FromStatus:   string(from),
		ToStatus:     string(next),
		EventVersion: a.version,
		Timestamp:    now,
	})
	return true, nil
}

// ReplaceData swaps the opaque provider payload, e.g. after a status sync
func (a *PayoutAccount) ReplaceData(data json.RawMessage) {
	if len(data) == 0 {
		return
	}
	a.data = data
	a.updatedAt = time.Now().UTC()
}

// EnsureCanReceivePayout rejects payouts on anything but an active account
func (a *PayoutAccount) EnsureCanReceivePayout() error {
	if a.status != AccountStatusActive {
		return fmt.Errorf("%w: account %s is %s, payouts require an active account", ErrInvalidTransition, a.id, a.status)
	}
	return nil
}

// Getters
func (a *PayoutAccount) ID() string               { return a.id }
func (a *PayoutAccount) SellerID() string         { return a.sellerID }
func (a *PayoutAccount) Provider() string         { return a.provider }
func (a *PayoutAccount) ReferenceID() string      { return a.referenceID }
func (a *PayoutAccount) Status() AccountStatus    { return a.status }
func (a *PayoutAccount) Data() json.RawMessage    { return a.data }
func (a *PayoutAccount) Context() json.RawMessage { return a.context }
func (a *PayoutAccount) Version() int             { return a.version }
func (a *PayoutAccount) CreatedAt() time.Time     { return a.createdAt }
func (a *PayoutAccount) UpdatedAt() time.Time     { return a.updatedAt }
func (a *PayoutAccount) IsLinked() bool           { return a.referenceID != "" }

func (a *PayoutAccount) raiseEvent(evt event.DomainEvent) {
	a.uncommittedEvents = append(a.uncommittedEvents, evt)
}

// GetUncommittedEvents returns uncommitted events
func (a *PayoutAccount) GetUncommittedEvents() []event.DomainEvent { return a.uncommittedEvents }

// MarkEventsAsCommitted clears uncommitted events
func (a *PayoutAccount) MarkEventsAsCommitted() { a.uncommittedEvents = nil }

// Onboarding bridges account creation and the provider hosted onboarding flow
type Onboarding struct {
	id        string
	accountID string
	data      json.RawMessage
	context   json.RawMessage
	createdAt time.Time
	updatedAt time.Time

	uncommittedEvents []event.DomainEvent
}

// NewOnboarding records a freshly issued onboarding artifact
func NewOnboarding(id, accountID string, data, context json.RawMessage) (*Onboarding, error) {
	if id == "" {
		return nil, fmt.Errorf("onboarding ID cannot be empty")
	}
	if accountID == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}
	now := time.Now().UTC()
	o := &Onboarding{id: id, accountID: accountID, data: data, context: context, createdAt: now, updatedAt: now}
	o.uncommittedEvents = append(o.uncommittedEvents, &event.OnboardingStarted{OnboardingID: id, AccountID: accountID, Timestamp: now})
	return o, nil
}

// ReconstructOnboarding rebuilds an onboarding from storage
func ReconstructOnboarding(id, accountID string, data, context json.RawMessage, createdAt, updatedAt time.Time) *Onboarding {
	return &Onboarding{id: id, accountID: accountID, data: data, context: context, createdAt: createdAt, updatedAt: updatedAt}
}

// Refresh replaces the onboarding artifact, provider links expire
func (o *Onboarding) Refresh(data, context json.RawMessage) {
	now := time.Now().UTC()
	o.data = data
	if len(context) > 0 {
		o.context = context
	}
	o.updatedAt = now
	o.uncommittedEvents = append(o.uncommittedEvents, &event.OnboardingStarted{OnboardingID: o.id, AccountID: o.accountID, Timestamp: now})
}

func (o *Onboarding) ID() string               { return o.id }
func (o *Onboarding) AccountID() string        { return o.accountID }
func (o *Onboarding) Data() json.RawMessage    { return o.data }
func (o *Onboarding) Context() json.RawMessage { return o.context }
func (o *Onboarding) CreatedAt() time.Time     { return o.createdAt }
func (o *Onboarding) UpdatedAt() time.Time     { return o.updatedAt }

// GetUncommittedEvents returns uncommitted events
func (o *Onboarding) GetUncommittedEvents() []event.DomainEvent { return o.uncommittedEvents }

// MarkEventsAsCommitted clears uncommitted events
func (o *Onboarding) MarkEventsAsCommitted() { o.uncommittedEvents = nil }
