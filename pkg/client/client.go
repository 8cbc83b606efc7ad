// Package client provides the Go SDK for a running ledgerd instance.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LedgerInfo is the chain overview returned by GET /api/v1/ledger.
type LedgerInfo struct {
	Entries int    `json:"entries"`
	Tip     string `json:"tip"`
}

// IntegrityReport mirrors the engine's integrity sweep result.
type IntegrityReport struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Balance is one account's position in one currency.
type Balance struct {
	AccountID string    `json:"accountId"`
	Balance   string    `json:"balance"`
	Currency  string    `json:"currency"`
	AsOf      time.Time `json:"asOf"`
	Verified  bool      `json:"verified"`
}

// Client is the ledgerd SDK entry point.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBearerToken attaches an actor token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.bearerToken = token }
}

// New creates a Client for the given ledgerd base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ledger returns the chain length and current tip.
func (c *Client) Ledger(ctx context.Context) (*LedgerInfo, error) {
	var info LedgerInfo
	if err := c.do(ctx, http.MethodGet, "/api/v1/ledger", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Verify runs a full integrity sweep on the server.
func (c *Client) Verify(ctx context.Context) (*IntegrityReport, error) {
	var report IntegrityReport
	if err := c.do(ctx, http.MethodGet, "/api/v1/ledger/verify", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Balance fetches the balance of an account. currency may be empty to
// use the server default.
func (c *Client) Balance(ctx context.Context, accountID, currency string) (*Balance, error) {
	path := "/api/v1/balances/" + accountID
	if currency != "" {
		path += "?currency=" + currency
	}
	var bal Balance
	if err := c.do(ctx, http.MethodGet, path, nil, &bal); err != nil {
		return nil, err
	}
	return &bal, nil
}

// GetTransaction fetches a transaction with its entries as raw JSON.
func (c *Client) GetTransaction(ctx context.Context, id string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/v1/transactions/"+id, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// CreateTransaction posts a new transaction. req is marshalled as the
// request body; the created transaction comes back as raw JSON.
func (c *Client) CreateTransaction(ctx context.Context, req any) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/v1/transactions", req, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Sign adds a signature to a transaction.
func (c *Client) Sign(ctx context.Context, txID, signer, signature, sigType string) (json.RawMessage, error) {
	var raw json.RawMessage
	body := map[string]string{
		"signer":        signer,
		"signature":     signature,
		"signatureType": sigType,
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/transactions/"+txID+"/signatures", body, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Execute anchors an approved transaction.
func (c *Client) Execute(ctx context.Context, txID string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/v1/transactions/"+txID+"/execute", nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Cancel cancels a transaction with a reason.
func (c *Client) Cancel(ctx context.Context, txID, reason string) error {
	body := map[string]string{"reason": reason}
	return c.do(ctx, http.MethodPost, "/api/v1/transactions/"+txID+"/cancel", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
