package proxmox

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/oakbyte/labpanel/internal/backend"
)

// ClientConfig holds the parameters for creating a new Client.
type ClientConfig struct {
	BaseURL       string
	TokenID       string
	TokenSecret   string
	TLSSkipVerify bool
	TLSCACertPath string
}

// Client is an HTTP client for the Proxmox REST API. It is safe for
// concurrent use and holds the credential set it was constructed with;
// reconfiguration builds a new Client rather than mutating this one.
type Client struct {
	baseURL     string
	tokenID     string
	tokenSecret string
	httpClient  *http.Client
}

// NewClient creates a new Proxmox API client. TLS verification is strict by
// default; homelabs with self-signed certs either pin the CA cert or opt in
// to skip-verify.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("proxmox base URL is required")
	}
	if cfg.TokenID == "" || cfg.TokenSecret == "" {
		return nil, fmt.Errorf("proxmox API token is required")
	}

	tlsCfg := &tls.Config{}

	if cfg.TLSCACertPath != "" {
		caCert, err := os.ReadFile(cfg.TLSCACertPath)
		if err != nil {
			return nil, fmt.Errorf("reading CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA cert from %s", cfg.TLSCACertPath)
		}
		tlsCfg.RootCAs = pool
	} else if cfg.TLSSkipVerify {
		tlsCfg.InsecureSkipVerify = true
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		tokenID:     cfg.TokenID,
		tokenSecret: cfg.TokenSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: tlsCfg,
			},
		},
	}, nil
}

// apiResponse wraps the standard Proxmox {"data": ...} envelope.
type apiResponse struct {
	Data   json.RawMessage   `json:"data"`
	Errors map[string]string `json:"errors,omitempty"`
}

// doRequest performs an HTTP request against the Proxmox API.
// For GET requests, params are added as query string.
// For POST/PUT/DELETE, params are form-encoded in the body.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, result interface{}) error {
	reqURL := c.baseURL + "/api2/json" + path

	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			reqURL += "?" + params.Encode()
		}
	} else {
		if params != nil {
			body = strings.NewReader(params.Encode())
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("PVEAPIToken=%s=%s", c.tokenID, c.tokenSecret))
	if method != http.MethodGet && body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Dial, DNS and TLS failures all surface here.
		return &backend.UnreachableError{Backend: backend.PVE, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &backend.UnreachableError{Backend: backend.PVE, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(resp.StatusCode, respBody)
	}

	if result != nil {
		var envelope apiResponse
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		if err := json.Unmarshal(envelope.Data, result); err != nil {
			return fmt.Errorf("decoding data: %w", err)
		}
	}

	return nil
}

// classifyStatus maps a non-2xx Proxmox response to the error taxonomy.
func classifyStatus(status int, respBody []byte) error {
	msg := string(respBody)
	var envelope apiResponse
	if json.Unmarshal(respBody, &envelope) == nil && len(envelope.Errors) > 0 {
		parts := make([]string, 0, len(envelope.Errors))
		for field, detail := range envelope.Errors {
			parts = append(parts, field+": "+detail)
		}
		msg = strings.Join(parts, "; ")
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &backend.AuthError{Backend: backend.PVE, Detail: fmt.Sprintf("%d %s", status, strings.TrimSpace(msg))}
	default:
		return &backend.UpstreamError{Backend: backend.PVE, StatusCode: status, Message: strings.TrimSpace(msg)}
	}
}
