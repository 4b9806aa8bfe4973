// Package clients holds outbound collaborator clients. The execution
// oracle is the off-chain brokerage relay that executes mint and redeem
// orders and reports results back through the callback endpoint.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"settlement-backend/internal/models"
)

// ExecutionOracleClient dispatches settlement orders to the brokerage and
// returns the oracle-issued request id. The result arrives asynchronously
// on the callback endpoint.
type ExecutionOracleClient interface {
	Dispatch(ctx context.Context, direction models.Direction, amount string, externalAccountID, ticker string) (string, error)
}

// BrokerOracleClient is the HTTP relay implementation.
type BrokerOracleClient struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

func NewBrokerOracleClient(baseURL, authToken string) *BrokerOracleClient {
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}
	return &BrokerOracleClient{
		baseURL:   baseURL,
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// DispatchRequest is the order payload sent to the brokerage relay.
type DispatchRequest struct {
	Direction         string `json:"direction"`
	Amount            string `json:"amount"`
	ExternalAccountID string `json:"external_account_id"`
	Ticker            string `json:"ticker"`
}

// DispatchResponse is the relay's acknowledgement.
type DispatchResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"request_id"`
	Error     string `json:"error,omitempty"`
}

func (c *BrokerOracleClient) Dispatch(ctx context.Context, direction models.Direction, amount string, externalAccountID, ticker string) (string, error) {
	url := fmt.Sprintf("%s/api/v1/orders", c.baseURL)

	jsonData, err := json.Marshal(DispatchRequest{
		Direction:         string(direction),
		Amount:            amount,
		ExternalAccountID: externalAccountID,
		Ticker:            ticker,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, string(body))
	}

	var result DispatchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if !result.Success {
		return "", fmt.Errorf("oracle returned error: %s", result.Error)
	}
	if result.RequestID == "" {
		return "", fmt.Errorf("oracle returned empty request id")
	}
	return result.RequestID, nil
}

// TestConnection probes the relay's health endpoint.
func (c *BrokerOracleClient) TestConnection() error {
	url := fmt.Sprintf("%s/health", c.baseURL)

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create test request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to execution oracle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("execution oracle health check returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
