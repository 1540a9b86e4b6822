package scanning

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

const (
	generateTokenPath    = "/merchantscan/generateToken"
	getEncryptedDataPath = "/scan/getEncryptedData"
)

// Client implements the Backend interface over HTTP
type Client struct {
	baseURL     string
	bearerToken string
	client      *http.Client
}

// NewClient creates a new Client. bearerToken is optional.
func NewClient(baseURL, bearerToken string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("backend url is required")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:     baseURL,
		bearerToken: bearerToken,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// generateTokenResponse accepts the fields at top level or under "data"
type generateTokenResponse struct {
	TokenResponse
	Data *TokenResponse `json:"data"`
}

type encryptedDataRequest struct {
	ScanID string `json:"scanId"`
}

// encryptedDataResponse tolerates "data" being absent, null or empty
type encryptedDataResponse struct {
	Data json.RawMessage `json:"data"`
}

type encryptedData struct {
	EncryptedData string `json:"encrypted_data"`
}

// GenerateToken requests a new scan session
func (c *Client) GenerateToken(ctx context.Context, merchant Merchant) (*TokenResponse, error) {
	var resp generateTokenResponse
	if err := c.post(ctx, generateTokenPath, merchant, &resp); err != nil {
		return nil, err
	}

	token := resp.TokenResponse
	if resp.Data != nil {
		token = *resp.Data
	}
	return &token, nil
}

// GetEncryptedData returns the encrypted payload, or "" while the scan is pending
func (c *Client) GetEncryptedData(ctx context.Context, scanID string) (string, error) {
	var resp encryptedDataResponse
	if err := c.post(ctx, getEncryptedDataPath, encryptedDataRequest{ScanID: scanID}, &resp); err != nil {
		return "", err
	}
	raw := bytes.TrimSpace(resp.Data)
	if len(raw) == 0 || raw[0] != '{' {
		return "", nil
	}
	var data encryptedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("decoding encrypted data: %w", err)
	}
	return strings.TrimSpace(data.EncryptedData), nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling scan backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("scan backend error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
