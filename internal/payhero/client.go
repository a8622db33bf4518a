// Package payhero talks to the PayHero-style payment provider. The client is
// a narrow boundary: transport and provider errors never escape as Go errors,
// they degrade to "failed to initiate", "still pending" or "not found" so the
// confirmation engine can treat them uniformly.
package payhero

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"recpay/internal/config"

	"github.com/rs/zerolog"
)

const defaultTimeout = 15 * time.Second

// StatusPending is reported whenever the provider has no definitive answer.
const StatusPending = "Pending"

// InitiateResult is the outcome of an STK push request.
type InitiateResult struct {
	Success    bool   `json:"success"`
	Status     string `json:"status"`
	Reference  string `json:"reference"`
	CheckoutID string `json:"checkout_id,omitempty"`
	Message    string `json:"message"`
}

// StatusResult is a normalized payment status snapshot.
type StatusResult struct {
	Status          string `json:"status"`
	TransactionCode string `json:"transaction_code,omitempty"`
}

type Client struct {
	baseURL     string
	authToken   string
	channelID   int
	provider    string
	callbackURL string
	countryCode string
	httpClient  *http.Client
	logger      zerolog.Logger
}

func NewClient(cfg config.PayHeroConfig, logger *zerolog.Logger) *Client {
	countryCode := cfg.CountryCode
	if countryCode == "" {
		countryCode = "254"
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		authToken:   cfg.AuthToken,
		channelID:   cfg.ChannelID,
		provider:    cfg.Provider,
		callbackURL: cfg.CallbackURL,
		countryCode: countryCode,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		logger:      logger.With().Str("component", "payhero").Logger(),
	}
}

// NormalizePhone canonicalizes a payer phone number: whitespace and a leading
// "+" are stripped, a leading "0" is replaced with the country code, and a
// number without the country code gets it prepended.
func NormalizePhone(raw, countryCode string) string {
	phone := strings.Join(strings.Fields(raw), "")
	phone = strings.TrimPrefix(phone, "+")

	switch {
	case strings.HasPrefix(phone, "0"):
		return countryCode + phone[1:]
	case !strings.HasPrefix(phone, countryCode):
		return countryCode + phone
	default:
		return phone
	}
}

// NormalizePhone applies the client's configured country code.
func (c *Client) NormalizePhone(raw string) string {
	return NormalizePhone(raw, c.countryCode)
}

type initiatePayload struct {
	Amount            int64  `json:"amount"`
	PhoneNumber       string `json:"phone_number"`
	ChannelID         int    `json:"channel_id"`
	Provider          string `json:"provider"`
	ExternalReference string `json:"external_reference"`
	CallbackURL       string `json:"callback_url"`
}

// paymentRecord covers the provider's response shapes. Field names vary
// between endpoints, so identifiers and codes are defused with fallbacks.
type paymentRecord struct {
	ID                any    `json:"id"`
	CheckoutID        string `json:"checkout_id"`
	PaymentID         string `json:"payment_id"`
	Status            string `json:"status"`
	TransactionCode   string `json:"transaction_code"`
	MpesaReference    string `json:"mpesa_reference"`
	ExternalReference string `json:"external_reference"`
	Message           string `json:"message"`
	ErrorMessage      string `json:"error_message"`
}

func (r paymentRecord) checkoutID() string {
	return firstNonEmpty(stringify(r.ID), r.CheckoutID, r.PaymentID)
}

func (r paymentRecord) transactionCode() string {
	return firstNonEmpty(r.TransactionCode, r.MpesaReference, r.checkoutID())
}

// Initiate dispatches the push payment request. The amount must be the exact
// service price; the provider rejects zero or negative amounts anyway, but we
// refuse to even send them.
func (c *Client) Initiate(ctx context.Context, amount int64, phone, reference string) InitiateResult {
	if amount <= 0 {
		return InitiateResult{
			Success:   false,
			Status:    "Failed",
			Reference: reference,
			Message:   fmt.Sprintf("invalid amount: %d", amount),
		}
	}

	payload := initiatePayload{
		Amount:            amount,
		PhoneNumber:       c.NormalizePhone(phone),
		ChannelID:         c.channelID,
		Provider:          c.provider,
		ExternalReference: reference,
		CallbackURL:       c.callbackURL,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return InitiateResult{Success: false, Status: "Error", Reference: reference, Message: "failed to encode payment request"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return InitiateResult{Success: false, Status: "Error", Reference: reference, Message: "failed to build payment request"}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("reference", reference).Msg("initiate transport error")
		return InitiateResult{Success: false, Status: "Error", Reference: reference, Message: "Network error. Please check your connection."}
	}
	defer resp.Body.Close()

	var record paymentRecord
	decodeErr := json.NewDecoder(resp.Body).Decode(&record)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := firstNonEmpty(record.ErrorMessage, record.Message, fmt.Sprintf("Initiation Failed (%d)", resp.StatusCode))
		c.logger.Warn().Int("status_code", resp.StatusCode).Str("reference", reference).Str("provider_message", message).Msg("initiate rejected")
		return InitiateResult{Success: false, Status: "Failed", Reference: reference, Message: message}
	}
	if decodeErr != nil {
		c.logger.Warn().Err(decodeErr).Str("reference", reference).Msg("initiate decode error")
		return InitiateResult{Success: false, Status: "Error", Reference: reference, Message: "unreadable provider response"}
	}

	return InitiateResult{
		Success:    true,
		Status:     firstNonEmpty(record.Status, "Success"),
		Reference:  reference,
		CheckoutID: record.checkoutID(),
		Message:    firstNonEmpty(record.Message, "STK Push sent! Please check your phone."),
	}
}

// CheckStatus looks up the current payment status. A direct checkout-id fetch
// is preferred; otherwise the payments list is searched by external reference.
// Any miss or failure reads as continued pendency, never as an error.
func (c *Client) CheckStatus(ctx context.Context, reference, checkoutID string) StatusResult {
	if checkoutID != "" {
		if record, ok := c.fetchByID(ctx, checkoutID); ok {
			return StatusResult{
				Status:          firstNonEmpty(record.Status, StatusPending),
				TransactionCode: record.transactionCode(),
			}
		}
	}

	records, ok := c.search(ctx, url.Values{"external_reference": {reference}})
	if ok {
		for _, record := range records {
			if record.ExternalReference == reference {
				return StatusResult{
					Status:          firstNonEmpty(record.Status, StatusPending),
					TransactionCode: record.transactionCode(),
				}
			}
		}
	}

	return StatusResult{Status: StatusPending}
}

// ErrUnavailable reports that the provider could not be reached at all, as
// opposed to a lookup that completed and found nothing.
var ErrUnavailable = errors.New("payment provider unavailable")

// SearchByCode finds a payment by a user-supplied transaction code. A nil
// result with a nil error means the lookup completed and nothing matched;
// ErrUnavailable means the provider could not answer.
func (c *Client) SearchByCode(ctx context.Context, code string) (*StatusResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}

	records, ok := c.search(ctx, url.Values{"transaction_code": {code}})
	if !ok {
		return nil, ErrUnavailable
	}

	for _, record := range records {
		if record.TransactionCode == code || record.MpesaReference == code {
			return &StatusResult{
				Status:          firstNonEmpty(record.Status, "Confirmed"),
				TransactionCode: firstNonEmpty(record.TransactionCode, record.MpesaReference),
			}, nil
		}
	}
	return nil, nil
}

func (c *Client) fetchByID(ctx context.Context, checkoutID string) (paymentRecord, bool) {
	var record paymentRecord

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/"+url.PathEscape(checkoutID), nil)
	if err != nil {
		return record, false
	}
	req.Header.Set("Authorization", c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("checkout_id", checkoutID).Msg("status fetch transport error")
		return record, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return record, false
	}
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return record, false
	}
	return record, true
}

// searchEnvelope accepts both a bare array and a {"results": [...]} wrapper.
type searchEnvelope struct {
	Results []paymentRecord `json:"results"`
}

func (c *Client) search(ctx context.Context, query url.Values) ([]paymentRecord, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments?"+query.Encode(), nil)
	if err != nil {
		return nil, false
	}
	req.Header.Set("Authorization", c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Msg("search transport error")
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, false
	}

	var records []paymentRecord
	if err := json.Unmarshal(raw, &records); err == nil {
		return records, true
	}

	var envelope searchEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil {
		return envelope.Results, true
	}
	return nil, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return fmt.Sprintf("%.0f", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
