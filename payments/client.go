// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/evannetwork/smartagent/lib/netutil"
	"github.com/evannetwork/smartagent/lib/wei"
)

// Channel states reported by the confirmation service.
const (
	StateOpen        = "OPEN"
	StateUnconfirmed = "UNCONFIRMED"
)

// Channel is one payment channel as reported by the confirmation
// service.
type Channel struct {
	State           string         `json:"state"`
	Sender          common.Address `json:"sender"`
	Receiver        common.Address `json:"receiver"`
	Deposit         wei.Amount     `json:"deposit"`
	Balance         wei.Amount     `json:"balance"`
	OpenBlockNumber BlockNumber    `json:"openBlockNumber"`
}

// BlockNumber decodes from a JSON number, a decimal string, or a 0x
// hex string.
type BlockNumber uint64

// UnmarshalJSON implements [json.Unmarshaler].
func (b *BlockNumber) UnmarshalJSON(data []byte) error {
	text := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if text == "" || text == "null" {
		*b = 0
		return nil
	}
	var (
		value uint64
		err   error
	)
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		value, err = strconv.ParseUint(text[2:], 16, 64)
	} else {
		value, err = strconv.ParseUint(text, 10, 64)
	}
	if err != nil {
		return fmt.Errorf("payments: invalid block number %q", text)
	}
	*b = BlockNumber(value)
	return nil
}

// HeaderSource produces a fresh Authorization header value.
// [github.com/evannetwork/smartagent/lib/evanauth.Signer] satisfies it.
type HeaderSource interface {
	Header() (string, error)
}

// ServiceError is a failed confirmation-service request: either a
// non-2xx status or a body with status "error".
type ServiceError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("payments: %s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
}

// IsServiceError reports whether err wraps a *ServiceError.
func IsServiceError(err error) bool {
	var serviceError *ServiceError
	return errors.As(err, &serviceError)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL is the confirmation service root, e.g.
	// "https://payments.test.evan.network".
	BaseURL     string
	CheckPath   string
	ConfirmPath string

	// HTTPClient defaults to http.DefaultClient. Its Timeout bounds
	// each request.
	HTTPClient *http.Client

	Header HeaderSource
	Logger *slog.Logger
}

// Client talks to the confirmation service on behalf of one agent.
type Client struct {
	checkURL   string
	confirmURL string
	httpClient *http.Client
	header     HeaderSource
	logger     *slog.Logger
}

// NewClient validates the configuration and returns a Client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Header == nil {
		return nil, errors.New("payments: client requires a header source")
	}
	base, err := url.Parse(config.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("payments: invalid service URL %q", config.BaseURL)
	}
	if config.CheckPath == "" || config.ConfirmPath == "" {
		return nil, errors.New("payments: client requires check and confirm paths")
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		checkURL:   base.JoinPath(config.CheckPath).String(),
		confirmURL: base.JoinPath(config.ConfirmPath).String(),
		httpClient: httpClient,
		header:     config.Header,
		logger:     logger,
	}, nil
}

// Channels returns the agent's channels to the payment agent.
func (c *Client) Channels(ctx context.Context) ([]Channel, error) {
	var channels []Channel
	if err := c.do(ctx, http.MethodGet, c.checkURL, nil, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

// Confirm submits a balance proof for the channel opened at
// openBlockNumber.
func (c *Client) Confirm(ctx context.Context, openBlockNumber uint64, proof string) error {
	body := struct {
		OpenBlockNumber uint64 `json:"openBlockNumber"`
		Proof           string `json:"proof"`
	}{openBlockNumber, proof}
	return c.do(ctx, http.MethodPost, c.confirmURL, body, nil)
}

// envelope is the confirmation service's response wrapper.
type envelope struct {
	Status string          `json:"status"`
	Error  json.RawMessage `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (c *Client) do(ctx context.Context, method, target string, body, result any) error {
	header, err := c.header.Header()
	if err != nil {
		return fmt.Errorf("payments: building authorization header: %w", err)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("payments: encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("payments: building request: %w", err)
	}
	request.Header.Set("Authorization", header)
	request.Header.Set("Accept", "application/json")
	request.Header.Set("X-Request-ID", uuid.NewString())
	if reader != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("payments: %s %s: %w", method, target, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return &ServiceError{
			Method:     method,
			URL:        target,
			StatusCode: response.StatusCode,
			Message:    netutil.ErrorBody(response.Body),
		}
	}

	var wrapped envelope
	if err := netutil.DecodeResponse(response.Body, &wrapped); err != nil {
		return fmt.Errorf("payments: %s %s: %w", method, target, err)
	}
	if wrapped.Status == "error" {
		return &ServiceError{
			Method:     method,
			URL:        target,
			StatusCode: response.StatusCode,
			Message:    errorText(wrapped.Error),
		}
	}
	c.logger.Debug("confirmation service responded", "method", method, "url", target, "status", wrapped.Status)

	if result == nil || len(wrapped.Result) == 0 || string(wrapped.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(wrapped.Result, result); err != nil {
		return fmt.Errorf("payments: decoding result of %s %s: %w", method, target, err)
	}
	return nil
}

// errorText renders the error field, which the service sends either
// as a string or as an object.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "unspecified error"
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return string(raw)
}
