package payos

import "time"

// Transaction states reported by PayOS
const (
	StateSucceeded  = "SUCCEEDED"
	StateFailed     = "FAILED"
	StateProcessing = "PROCESSING"
	StateCanceled   = "CANCELLED"
)

// CreatePayoutRequest is the body of POST /v1/payouts
type CreatePayoutRequest struct {
	ReferenceID     string   `json:"referenceId"`
	Amount          int64    `json:"amount"`
	Description     string   `json:"description"`
	ToBin           string   `json:"toBin"`
	ToAccountNumber string   `json:"toAccountNumber"`
	Category        []string `json:"category,omitempty"`
}

// PayoutData is a PayOS payout batch with its transfer transactions
type PayoutData struct {
	ID            string              `json:"id"`
	ReferenceID   string              `json:"referenceId"`
	Transactions  []PayoutTransaction `json:"transactions"`
	Category      []string            `json:"category"`
	ApprovalState string              `json:"approvalState"`
	CreatedAt     time.Time           `json:"createdAt"`
}

// PayoutTransaction is a single bank transfer inside a payout
type PayoutTransaction struct {
	ID                  string    `json:"id"`
	ReferenceID         string    `json:"referenceId"`
	Amount              int64     `json:"amount"`
	Description         string    `json:"description"`
	ToBin               string    `json:"toBin"`
	ToAccountNumber     string    `json:"toAccountNumber"`
	ToAccountName       string    `json:"toAccountName"`
	Reference           string    `json:"reference"`
	TransactionDatetime time.Time `json:"transactionDatetime"`
	ErrorMessage        string    `json:"errorMessage,omitempty"`
	ErrorCode           string    `json:"errorCode,omitempty"`
	State               string    `json:"state"`
}

// State is the state of the first transaction, PROCESSING when none was created yet
func (d *PayoutData) State() (state, errorMessage string) {
	if len(d.Transactions) == 0 {
		return StateProcessing, ""
	}
	t := d.Transactions[0]
	return t.State, t.ErrorMessage
}

// BankAccount is the payout destination collected at onboarding
type BankAccount struct {
	BankName      string `json:"bank_name"`
	Bin           string `json:"bin"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// webhookBody is a PayOS payout notification
type webhookBody struct {
	Code      string                 `json:"code"`
	Desc      string                 `json:"desc"`
	Data      map[string]interface{} `json:"data"`
	Signature string                 `json:"signature"`
}

type webhookData struct {
	ID           string `json:"id"`
	ReferenceID  string `json:"referenceId"`
	State        string `json:"state"`
	ErrorMessage string `json:"errorMessage"`
}
