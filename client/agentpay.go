package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ChatResponse is the agent's reply to one message.
type ChatResponse struct {
	Success       bool   `json:"success"`
	Response      string `json:"response"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// TransferRequest is a structured transfer. Recipient may be an account id
// or a directory name.
type TransferRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency,omitempty"`
	Purpose   string `json:"purpose,omitempty"`
}

// TransferResult is the outcome of a structured transfer. Failed transfers
// are returned with Success false and a nil error.
type TransferResult struct {
	Success       bool   `json:"success"`
	TransferID    string `json:"transfer_id,omitempty"`
	State         string `json:"state,omitempty"`
	Reason        string `json:"reason,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	ExplorerURL   string `json:"explorer_url,omitempty"`
	Message       string `json:"message,omitempty"`
	Error         string `json:"error,omitempty"`
}

// TransferStatus describes an async transfer workflow.
type TransferStatus struct {
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
	Result     *struct {
		Status        string `json:"status"`
		TransferID    string `json:"transfer_id,omitempty"`
		TransactionID string `json:"transaction_id,omitempty"`
		ExplorerURL   string `json:"explorer_url,omitempty"`
		Message       string `json:"message"`
	} `json:"result,omitempty"`
	Error string `json:"error,omitempty"`
}

// Balances are token balances reported by the server.
type Balances struct {
	TokenID     string `json:"token_id"`
	TokenSymbol string `json:"token_symbol"`
	Network     string `json:"network"`
	Balances    []struct {
		Role      string `json:"role"`
		AccountID string `json:"account_id"`
		Balance   string `json:"balance"`
	} `json:"balances"`
}

// Recipient is a directory entry.
type Recipient struct {
	Name        string `json:"name"`
	AccountID   string `json:"account_id"`
	Location    string `json:"location"`
	Currency    string `json:"currency,omitempty"`
	KYCVerified bool   `json:"kyc_verified"`
}

// TransferEvent is a completed transfer streamed over SSE.
type TransferEvent struct {
	TransferID      string    `json:"transfer_id"`
	TransactionID   string    `json:"transaction_id"`
	Sender          string    `json:"sender"`
	Recipient       string    `json:"recipient"`
	RecipientHandle string    `json:"recipient_handle,omitempty"`
	Amount          string    `json:"amount"`
	SourceCurrency  string    `json:"source_currency"`
	AmountUSD       string    `json:"amount_usd"`
	ExplorerURL     string    `json:"explorer_url"`
	CompletedAt     time.Time `json:"completed_at"`
}

// Client is the HTTP client for the agentpay service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new agentpay client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Chat sends one chat message to the agent.
func (c *Client) Chat(ctx context.Context, message string) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.do(ctx, "POST", "/api/v1/chat", map[string]string{"message": message}, http.StatusOK, &out); err != nil {
		return nil, err
	}
	c.logger.Debug("chat answered", "success", out.Success, "transaction_id", out.TransactionID)
	return &out, nil
}

// Transfer executes a structured transfer. Pipeline rejections come back as
// a result with Success false; only transport and validation problems are
// errors.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/transfer", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out TransferResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(raw))
	}
	// Validation errors carry no transfer state.
	if resp.StatusCode != http.StatusOK && out.State == "" {
		return nil, fmt.Errorf("request failed: %s", out.Error)
	}

	c.logger.Debug("transfer finished", "state", out.State, "transaction_id", out.TransactionID)
	return &out, nil
}

// StartAsyncTransfer starts a transfer workflow from a chat message and
// returns its workflow id.
func (c *Client) StartAsyncTransfer(ctx context.Context, message string) (string, error) {
	var out struct {
		WorkflowID string `json:"workflow_id"`
	}
	if err := c.do(ctx, "POST", "/api/v1/transfers/async", map[string]string{"message": message}, http.StatusAccepted, &out); err != nil {
		return "", err
	}
	return out.WorkflowID, nil
}

// GetTransferStatus reports the status of an async transfer.
func (c *Client) GetTransferStatus(ctx context.Context, workflowID string) (*TransferStatus, error) {
	var out TransferStatus
	path := "/api/v1/transfers/async/" + url.PathEscape(workflowID)
	if err := c.do(ctx, "GET", path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Balances returns the sender and default recipient balances, or the
// balance of account when it is non-empty.
func (c *Client) Balances(ctx context.Context, account string) (*Balances, error) {
	path := "/api/v1/balances"
	if account != "" {
		path += "?account=" + url.QueryEscape(account)
	}
	var out Balances
	if err := c.do(ctx, "GET", path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Recipients lists the recipient directory.
func (c *Client) Recipients(ctx context.Context) ([]Recipient, error) {
	var out struct {
		Recipients []Recipient `json:"recipients"`
	}
	if err := c.do(ctx, "GET", "/api/v1/recipients", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Recipients, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// AwaitTransfer streams completed transfers (to account, or to anyone when
// account is empty) and returns the first one that matches.
func (c *Client) AwaitTransfer(ctx context.Context, account string, matches func(*TransferEvent) bool) (*TransferEvent, error) {
	path := "/api/v1/stream/transfers"
	if account != "" {
		path += "/" + url.PathEscape(account)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream stays open; rely on ctx rather than the client timeout.
	streamClient := *c.httpClient
	streamClient.Timeout = 0

	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var eventType string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if eventType != "" && eventType != "transfer" {
				continue
			}
			var event TransferEvent
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				c.logger.Debug("skipping malformed event", "error", err)
				continue
			}
			if matches == nil || matches(&event) {
				return &event, nil
			}
		case line == "":
			eventType = ""
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream failed: %w", err)
	}
	return nil, fmt.Errorf("stream closed before a matching transfer arrived")
}

func (c *Client) do(ctx context.Context, method, path string, in interface{}, wantStatus int, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
