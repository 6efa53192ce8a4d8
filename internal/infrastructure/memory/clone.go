package memory

import "marketplace-settlement/internal/domain/aggregate"

// Stored aggregates are copies so callers never alias the store.

func cloneRule(r *aggregate.CommissionRule) *aggregate.CommissionRule {
	return aggregate.ReconstructCommissionRule(r.ID(), r.Name(), r.Reference(), r.ReferenceID(), r.IsActive(), r.Rate(), r.CreatedAt(), r.UpdatedAt())
}

func cloneLine(l *aggregate.CommissionLine) *aggregate.CommissionLine {
	return aggregate.ReconstructCommissionLine(
		l.ID(), l.OrderID(), l.ItemLineID(), l.SellerID(), l.RuleID(), l.CurrencyCode(),
		l.Value(), l.RawValue(), l.GrossAmount(), l.Version(), l.CreatedAt(), l.UpdatedAt(), l.DeletedAt(),
	)
}

func cloneAccount(a *aggregate.PayoutAccount) *aggregate.PayoutAccount {
	return aggregate.ReconstructPayoutAccount(
		a.ID(), a.SellerID(), a.Provider(), a.ReferenceID(), a.Status(),
		a.Data(), a.Context(), a.Version(), a.CreatedAt(), a.UpdatedAt(),
	)
}

func cloneOnboarding(o *aggregate.Onboarding) *aggregate.Onboarding {
	return aggregate.ReconstructOnboarding(o.ID(), o.AccountID(), o.Data(), o.Context(), o.CreatedAt(), o.UpdatedAt())
}

func clonePayout(p *aggregate.Payout) *aggregate.Payout {
	return aggregate.ReconstructPayout(
		p.ID(), p.AccountID(), p.OrderID(), p.Amount(), p.CurrencyCode(), p.Status(), p.Data(),
		p.ProviderReference(), p.RequestKey(), p.FailureReason(), p.ReversedAmount(), p.Version(),
		p.ProcessedAt(), p.PaidAt(), p.CreatedAt(), p.UpdatedAt(),
	)
}

func cloneBalance(b *aggregate.PayoutBalance) *aggregate.PayoutBalance {
	c := *b
	return &c
}
