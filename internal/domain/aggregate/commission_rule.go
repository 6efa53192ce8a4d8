package aggregate

import (
	"fmt"
	"time"

	"marketplace-settlement/internal/domain/event"
)

// RuleReference is the closed set of targets a commission rule can attach to
type RuleReference string

const (
	RuleReferenceProduct  RuleReference = "product"
	RuleReferenceCategory RuleReference = "category"
	RuleReferenceSeller   RuleReference = "seller"
	RuleReferenceGlobal   RuleReference = "global"
)

// ParseRuleReference converts a stored string into a RuleReference
func ParseRuleReference(s string) (RuleReference, error) {
	switch RuleReference(s) {
	case RuleReferenceProduct, RuleReferenceCategory, RuleReferenceSeller, RuleReferenceGlobal:
		return RuleReference(s), nil
	}
	return "", fmt.Errorf("unknown rule reference %q", s)
}

// Precedence orders references from most to least specific. Lower wins.
func (r RuleReference) Precedence() int {
	switch r {
	case RuleReferenceProduct:
		return 0
	case RuleReferenceCategory:
		return 1
	case RuleReferenceSeller:
		return 2
	case RuleReferenceGlobal:
		return 3
	}
	panic(fmt.Sprintf("unhandled rule reference %q", string(r)))
}

// CommissionRule binds a rate to a product, category, seller or the whole marketplace
type CommissionRule struct {
	id          string
	name        string
	reference   RuleReference
	referenceID string
	isActive    bool
	rate        *CommissionRate
	createdAt   time.Time
	updatedAt   time.Time

	uncommittedEvents []event.DomainEvent
}

// NewCommissionRule creates a rule
func NewCommissionRule(id, name string, reference RuleReference, referenceID string, isActive bool, rate *CommissionRate) (*CommissionRule, error) {
	if id == "" {
		return nil, fmt.Errorf("rule ID cannot be empty")
	}
	if name == "" {
		return nil, fmt.Errorf("rule name cannot be empty")
	}
	if _, err := ParseRuleReference(string(reference)); err != nil {
		return nil, err
	}
	if reference == RuleReferenceGlobal && referenceID != "" {
		return nil, fmt.Errorf("global rules cannot carry a reference ID")
	}
	if reference != RuleReferenceGlobal && referenceID == "" {
		return nil, fmt.Errorf("%s rules require a reference ID", reference)
	}
	if rate == nil {
		return nil, fmt.Errorf("rule %s requires a rate", id)
	}

	now := time.Now().UTC()
	rule := &CommissionRule{
		id:          id,
		name:        name,
		reference:   reference,
		referenceID: referenceID,
		isActive:    isActive,
		rate:        rate,
		createdAt:   now,
		updatedAt:   now,
	}
	rule.raiseUpserted(now)
	return rule, nil
}

// ReconstructCommissionRule rebuilds a rule from storage
func ReconstructCommissionRule(id, name string, reference RuleReference, referenceID string, isActive bool, rate *CommissionRate, createdAt, updatedAt time.Time) *CommissionRule {
	return &CommissionRule{
		id:          id,
		name:        name,
		reference:   reference,
		referenceID: referenceID,
		isActive:    isActive,
		rate:        rate,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// Revise renames, toggles and re-rates a rule. A rate with new terms must arrive under a new ID.
func (r *CommissionRule) Revise(name string, isActive bool, rate *CommissionRate) error {
	if name == "" {
		return fmt.Errorf("rule name cannot be empty")
	}
	if rate == nil {
		return fmt.Errorf("rule %s requires a rate", r.id)
	}
	if rate.ID() == r.rate.ID() && !rate.SameTerms(r.rate) {
		return fmt.Errorf("%w: rate %s is in use and cannot be changed in place", ErrInvalidRate, rate.ID())
	}

	now := time.Now().UTC()
	r.name = name
	r.isActive = isActive
	r.rate = rate
	r.updatedAt = now
	r.raiseUpserted(now)
	return nil
}

// Matches reports whether the rule applies to the given line context
func (r *CommissionRule) Matches(sellerID, productID string, categoryIDs []string) bool {
	if !r.isActive {
		return false
	}
	switch r.reference {
	case RuleReferenceProduct:
		return r.referenceID == productID
	case RuleReferenceCategory:
		for _, id := range categoryIDs {
			if id == r.referenceID {
				return true
			}
		}
		return false
	case RuleReferenceSeller:
		return r.referenceID == sellerID
	case RuleReferenceGlobal:
		return true
	}
	panic(fmt.Sprintf("unhandled rule reference %q", string(r.reference)))
}

func (r *CommissionRule) raiseUpserted(at time.Time) {
	r.uncommittedEvents = append(r.uncommittedEvents, &event.CommissionRuleUpserted{
		RuleID:      r.id,
		Name:        r.name,
		Reference:   string(r.reference),
		ReferenceID: r.referenceID,
		RateID:      r.rate.ID(),
		IsActive:    r.isActive,
		Timestamp:   at,
	})
}

// Getters
func (r *CommissionRule) ID() string               { return r.id }
func (r *CommissionRule) Name() string             { return r.name }
func (r *CommissionRule) Reference() RuleReference { return r.reference }
func (r *CommissionRule) ReferenceID() string      { return r.referenceID }
func (r *CommissionRule) IsActive() bool           { return r.isActive }
func (r *CommissionRule) Rate() *CommissionRate    { return r.rate }
func (r *CommissionRule) CreatedAt() time.Time     { return r.createdAt }
func (r *CommissionRule) UpdatedAt() time.Time     { return r.updatedAt }

// GetUncommittedEvents returns uncommitted events
func (r *CommissionRule) GetUncommittedEvents() []event.DomainEvent { return r.uncommittedEvents }

// MarkEventsAsCommitted clears uncommitted events
func (r *CommissionRule) MarkEventsAsCommitted() { r.uncommittedEvents = nil }
