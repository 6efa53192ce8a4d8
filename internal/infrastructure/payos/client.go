package payos

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

const successCode = "00"

// Config holds the configuration for PayOS payout integration
type Config struct {
	ClientID    string
	APIKey      string
	ChecksumKey string
	BaseURL     string
}

// Client is the signed HTTP client for the PayOS payout API
type Client struct {
	config     Config
	httpClient *http.Client
}

// APIError is a non-success answer from PayOS
type APIError struct {
	HTTPStatus int
	Code       string
	Desc       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payos api error (status %d, code %s): %s", e.HTTPStatus, e.Code, e.Desc)
}

type envelope struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature,omitempty"`
}

// NewClient creates a PayOS client; a nil httpClient gets a 30s default
func NewClient(config Config, httpClient *http.Client) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://api-merchant.payos.vn"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{config: config, httpClient: httpClient}
}

// CreatePayout submits a single bank transfer. PayOS deduplicates on the idempotency key.
func (c *Client) CreatePayout(ctx context.Context, req *CreatePayoutRequest, idempotencyKey string) (*PayoutData, error) {
	headers := map[string]string{
		"x-idempotency-key": idempotencyKey,
		"x-signature":       c.sign(payoutSignatureData(req)),
	}
	var data PayoutData
	if err := c.do(ctx, http.MethodPost, "/v1/payouts", req, headers, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPayout fetches a payout by PayOS id
func (c *Client) GetPayout(ctx context.Context, id string) (*PayoutData, error) {
	var data PayoutData
	if err := c.do(ctx, http.MethodGet, "/v1/payouts/"+id, nil, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// FindPayout looks a payout up by our reference id; nil when PayOS never received it
func (c *Client) FindPayout(ctx context.Context, referenceID string) (*PayoutData, error) {
	var page struct {
		Payouts []PayoutData `json:"payouts"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/payouts?referenceId="+referenceID, nil, nil, &page); err != nil {
		return nil, err
	}
	for i := range page.Payouts {
		if page.Payouts[i].ReferenceID == referenceID {
			return &page.Payouts[i], nil
		}
	}
	return nil, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, headers map[string]string, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("x-client-id", c.config.ClientID)
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &APIError{HTTPStatus: resp.StatusCode, Desc: string(respBody)}
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || env.Code != successCode {
		return &APIError{HTTPStatus: resp.StatusCode, Code: env.Code, Desc: env.Desc}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal payout data: %w", err)
	}
	return nil
}

// payoutSignatureData lists the signed fields in alphabetical order
func payoutSignatureData(req *CreatePayoutRequest) string {
	return fmt.Sprintf("amount=%d&description=%s&referenceId=%s&toAccountNumber=%s&toBin=%s",
		req.Amount,
		req.Description,
		req.ReferenceID,
		req.ToAccountNumber,
		req.ToBin,
	)
}

func (c *Client) sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.config.ChecksumKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyWebhookSignature checks the signature PayOS computes over the sorted data object
func (c *Client) VerifyWebhookSignature(data map[string]interface{}, signature string) bool {
	expected := c.sign(sortDataForSignature(data))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// sortDataForSignature renders key=value pairs sorted by key, joined with &
func sortDataForSignature(data map[string]interface{}) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := data[k]
		if v == nil {
			v = ""
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, "&")
}
