package event

// SettlementEventTypes lists every event type this service publishes, for bus fan-out subscriptions.
var SettlementEventTypes = []string{
	"CommissionRuleUpserted",
	"CommissionRecorded",
	"CommissionReversed",
	"PayoutAccountCreated",
	"PayoutAccountLinked",
	"PayoutAccountStatusChanged",
	"OnboardingStarted",
	"PayoutRequested",
	"PayoutProcessing",
	"PayoutPaid",
	"PayoutFailed",
	"PayoutCanceled",
	"PayoutReversed",
	"PayoutBalanceChanged",
}
