/**
 * @description
 * This package provides a client for interacting with the card-issuing
 * platform's API. It encapsulates the logic for making authenticated HTTP
 * requests, handling request body construction, and parsing responses.
 *
 * @dependencies
 * - context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package cardclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Client is a client for the card platform API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new card platform API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// TransactionResponse is the platform's view of a card transaction.
type TransactionResponse struct {
	Data struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			Status   string `json:"status"`
			Amount   int64  `json:"amount"`
			Merchant string `json:"merchant"`
		} `json:"attributes"`
	} `json:"data"`
}

// ErrorResponse represents an error from the card platform API.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("card api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown card api error"
}

// VerifyTransaction checks that the platform recognizes a settled
// transaction id. A 404 from the platform returns (false, nil) so the
// caller can reject the settlement without treating it as transient.
func (c *Client) VerifyTransaction(ctx context.Context, transactionID string) (bool, error) {
	url := c.BaseURL + "/api/v1/transactions/" + transactionID

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create transaction request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-card-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to execute transaction request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read transaction response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=card_client op=verify_transaction status=%d msg=\"non-2xx response (unparsable error body)\"", resp.StatusCode)
			return false, fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=card_client op=verify_transaction status=%d title=%q detail=%q", resp.StatusCode, firstErrorTitle(errResp), firstErrorDetail(errResp))
		return false, &errResp
	}

	var txResp TransactionResponse
	if err := json.Unmarshal(bodyBytes, &txResp); err != nil {
		return false, fmt.Errorf("failed to decode transaction response: %w", err)
	}

	return txResp.Data.ID == transactionID, nil
}

func firstErrorTitle(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Title
}

func firstErrorDetail(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Detail
}
