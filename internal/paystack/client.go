// Package paystack settles deposits and withdrawals through the Paystack API.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Godswillamos0/escrow-api/internal/bankdirectory"
	"github.com/Godswillamos0/escrow-api/pkg/ledger"
	"github.com/sony/gobreaker"
)

const (
	DefaultBaseURL = "https://api.paystack.co"

	errorOperationPaystack = "paystack"
	errorCodeRequest       = "request"
	errorCodeDecode        = "decode"
	errorCodeRejected      = "rejected"
	errorCodeUnavailable   = "unavailable"
	errorCodeTimeout       = "timeout"

	operationCreateRecipient  = "create_recipient"
	operationInitiateTransfer = "initiate_transfer"
	operationInitializeCharge = "initialize_charge"
	operationListBanks        = "list_banks"
	operationResolveAccount   = "resolve_account"

	outcomeSuccess     = "success"
	outcomeRejected    = "rejected"
	outcomeError       = "error"
	outcomeTimeout     = "timeout"
	outcomeUnavailable = "unavailable"

	recipientTypeNUBAN     = "nuban"
	transferSourceBalance  = "balance"
	maxResponseBytes       = 1 << 20
	defaultHTTPTimeout     = 30 * time.Second
	defaultTripFailures    = 5
	defaultBreakerOpenTime = 30 * time.Second
)

var (
	errMissingSecretKey = errors.New("paystack secret key is required")
	errProviderRejected = errors.New("provider rejected request")
)

// CallObserver receives the outcome and latency of every provider call.
type CallObserver interface {
	ObserveGatewayCall(operation string, outcome string, duration time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveGatewayCall(string, string, time.Duration) {}

// Client is a Paystack REST client guarded by a circuit breaker.
type Client struct {
	secretKey    string
	baseURL      string
	httpClient   *http.Client
	observer     CallObserver
	breaker      *gobreaker.CircuitBreaker
	tripFailures uint32
	openTimeout  time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a different API host.
func WithBaseURL(baseURL string) ClientOption {
	return func(client *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			client.baseURL = trimmed
		}
	}
}

// WithHTTPClient replaces the transport client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(client *Client) {
		if httpClient != nil {
			client.httpClient = httpClient
		}
	}
}

// WithObserver wires call metrics.
func WithObserver(observer CallObserver) ClientOption {
	return func(client *Client) {
		if observer != nil {
			client.observer = observer
		}
	}
}

// WithBreaker sets how many consecutive failures open the breaker and how long it stays open.
func WithBreaker(consecutiveFailures uint32, openTimeout time.Duration) ClientOption {
	return func(client *Client) {
		if consecutiveFailures > 0 {
			client.tripFailures = consecutiveFailures
		}
		if openTimeout > 0 {
			client.openTimeout = openTimeout
		}
	}
}

// NewClient validates the secret key and builds a client.
func NewClient(secretKey string, options ...ClientOption) (*Client, error) {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil, errMissingSecretKey
	}
	client := &Client{
		secretKey:    secretKey,
		baseURL:      DefaultBaseURL,
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
		observer:     noopObserver{},
		tripFailures: defaultTripFailures,
		openTimeout:  defaultBreakerOpenTime,
	}
	for _, option := range options {
		option(client)
	}
	tripFailures := client.tripFailures
	client.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "paystack",
		Timeout: client.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errProviderRejected)
		},
	})
	return client, nil
}

// BreakerState reports the circuit breaker state name.
func (client *Client) BreakerState() string {
	return client.breaker.State().String()
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type recipientPayload struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	Currency      string `json:"currency"`
}

type recipientData struct {
	RecipientCode string `json:"recipient_code"`
}

// CreateRecipient registers a NUBAN payout destination.
func (client *Client) CreateRecipient(ctx context.Context, request ledger.RecipientRequest) (ledger.RecipientRef, error) {
	var data recipientData
	err := client.call(ctx, operationCreateRecipient, http.MethodPost, "/transferrecipient", nil, recipientPayload{
		Type:          recipientTypeNUBAN,
		Name:          request.AccountName,
		AccountNumber: request.AccountNumber,
		BankCode:      request.BankCode,
		Currency:      request.Currency.String(),
	}, &data)
	if err != nil {
		return "", err
	}
	if data.RecipientCode == "" {
		return "", client.wrap(operationCreateRecipient, errorCodeDecode, fmt.Errorf("%w: missing recipient code", ledger.ErrGateway))
	}
	return ledger.RecipientRef(data.RecipientCode), nil
}

type transferPayload struct {
	Source    string `json:"source"`
	Amount    int64  `json:"amount"`
	Recipient string `json:"recipient"`
	Reason    string `json:"reason"`
	Reference string `json:"reference"`
	Currency  string `json:"currency"`
}

type transferData struct {
	Reference    string `json:"reference"`
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"`
}

// InitiateTransfer queues a payout from the Paystack balance.
func (client *Client) InitiateTransfer(ctx context.Context, request ledger.TransferRequest) (ledger.TransferResult, error) {
	var data transferData
	err := client.call(ctx, operationInitiateTransfer, http.MethodPost, "/transfer", nil, transferPayload{
		Source:    transferSourceBalance,
		Amount:    request.AmountMinorUnits,
		Recipient: string(request.Recipient),
		Reason:    request.Reason,
		Reference: request.Reference.String(),
		Currency:  request.Currency.String(),
	}, &data)
	if err != nil {
		return ledger.TransferResult{}, err
	}
	return ledger.TransferResult{
		Reference:    request.Reference,
		ProviderCode: data.TransferCode,
		Status:       parseTransferStatus(data.Status),
	}, nil
}

type chargePayload struct {
	Email     string            `json:"email"`
	Amount    int64             `json:"amount"`
	Reference string            `json:"reference"`
	Currency  string            `json:"currency"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type chargeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// InitializeCharge starts a hosted checkout and returns its URL.
func (client *Client) InitializeCharge(ctx context.Context, request ledger.ChargeRequest) (ledger.ChargeResult, error) {
	var data chargeData
	err := client.call(ctx, operationInitializeCharge, http.MethodPost, "/transaction/initialize", nil, chargePayload{
		Email:     request.Email,
		Amount:    request.AmountMinorUnits,
		Reference: request.Reference.String(),
		Currency:  request.Currency.String(),
		Metadata:  request.Metadata,
	}, &data)
	if err != nil {
		return ledger.ChargeResult{}, err
	}
	if data.AuthorizationURL == "" {
		return ledger.ChargeResult{}, client.wrap(operationInitializeCharge, errorCodeDecode, fmt.Errorf("%w: missing authorization url", ledger.ErrGateway))
	}
	return ledger.ChargeResult{CheckoutURL: data.AuthorizationURL, Reference: request.Reference}, nil
}

type bankData struct {
	Name string `json:"name"`
	Code string `json:"code"`
	Slug string `json:"slug"`
}

// ListBanks returns the Nigerian banks that accept transfers.
func (client *Client) ListBanks(ctx context.Context) ([]bankdirectory.Bank, error) {
	var data []bankData
	query := url.Values{"country": []string{"nigeria"}}
	if err := client.call(ctx, operationListBanks, http.MethodGet, "/bank", query, nil, &data); err != nil {
		return nil, err
	}
	banks := make([]bankdirectory.Bank, 0, len(data))
	for _, bank := range data {
		banks = append(banks, bankdirectory.Bank{Name: bank.Name, Code: bank.Code, Slug: bank.Slug})
	}
	return banks, nil
}

type resolveData struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// ResolveAccount looks up the registered holder of a bank account.
func (client *Client) ResolveAccount(ctx context.Context, bankCode string, accountNumber string) (bankdirectory.ResolvedAccount, error) {
	var data resolveData
	query := url.Values{"account_number": []string{accountNumber}, "bank_code": []string{bankCode}}
	if err := client.call(ctx, operationResolveAccount, http.MethodGet, "/bank/resolve", query, nil, &data); err != nil {
		return bankdirectory.ResolvedAccount{}, err
	}
	return bankdirectory.ResolvedAccount{BankCode: bankCode, AccountNumber: data.AccountNumber, AccountName: data.AccountName}, nil
}

// call performs one request through the breaker and decodes the data field into target.
func (client *Client) call(ctx context.Context, operation string, method string, path string, query url.Values, payload interface{}, target interface{}) error {
	started := time.Now()
	_, err := client.breaker.Execute(func() (interface{}, error) {
		return nil, client.do(ctx, method, path, query, payload, target)
	})
	outcome := outcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = outcomeUnavailable
		err = client.wrap(operation, errorCodeUnavailable, fmt.Errorf("%w: %v", ledger.ErrGateway, err))
	case isTimeout(ctx, err):
		outcome = outcomeTimeout
		err = client.wrap(operation, errorCodeTimeout, fmt.Errorf("%w: %v", ledger.ErrGatewayTimeout, err))
	case errors.Is(err, errProviderRejected):
		outcome = outcomeRejected
		err = client.wrap(operation, errorCodeRejected, fmt.Errorf("%w: %v", ledger.ErrGateway, err))
	default:
		outcome = outcomeError
		err = client.wrap(operation, errorCodeRequest, fmt.Errorf("%w: %v", ledger.ErrGateway, err))
	}
	client.observer.ObserveGatewayCall(operation, outcome, time.Since(started))
	return err
}

func (client *Client) do(ctx context.Context, method string, path string, query url.Values, payload interface{}, target interface{}) error {
	endpoint := client.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	request.Header.Set("Authorization", "Bearer "+client.secretKey)
	request.Header.Set("Accept", "application/json")
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	response, err := client.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	var decoded envelope
	decodeErr := json.Unmarshal(raw, &decoded)
	if response.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("http %d: %s", response.StatusCode, decoded.Message)
	}
	if response.StatusCode >= http.StatusBadRequest || (decodeErr == nil && !decoded.Status) {
		return fmt.Errorf("%w: http %d: %s", errProviderRejected, response.StatusCode, messageOrDefault(decoded.Message))
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if target == nil || len(decoded.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Data, target); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func (client *Client) wrap(operation string, code string, err error) error {
	return ledger.WrapError(errorOperationPaystack, operation, code, err)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func parseTransferStatus(raw string) ledger.TransferStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success":
		return ledger.TransferStatusSuccess
	case "failed", "reversed", "rejected", "abandoned":
		return ledger.TransferStatusFailed
	default:
		return ledger.TransferStatusPending
	}
}

func messageOrDefault(message string) string {
	if strings.TrimSpace(message) == "" {
		return "no message"
	}
	return message
}

var (
	_ ledger.SettlementGateway = (*Client)(nil)
	_ bankdirectory.Source     = (*Client)(nil)
)
