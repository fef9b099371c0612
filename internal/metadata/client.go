// Package metadata fetches application metadata from the registry service
// and remaps its flat response into the nested Application shape used in
// the final specification document.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/specforge/internal/logging"
	"github.com/fyrsmithlabs/specforge/internal/retry"
)

const defaultTimeout = 30 * time.Second

// Raw is the flat response from the fetch-metadata endpoint.
type Raw struct {
	ApplicationName             string `json:"Application Name"`
	ApplicationType             string `json:"Application Type"`
	CentralID                   string `json:"Central ID"`
	CompanyPlatform             string `json:"Company Platform"`
	TechPlatform                string `json:"Tech Platform"`
	TargetProductionEnvironment string `json:"Target Production Environment"`
	HostingEnvironment          string `json:"Hosting Environment"`
	InternetFacing              string `json:"Internet Facing"`
	DataClassification          string `json:"Data Classification"`
}

// Application is the nested shape embedded in the specification document.
type Application struct {
	Information  Information  `json:"Information"`
	Architecture Architecture `json:"Architecture"`
	Risk         Risk         `json:"Risk"`
	Regulatory   Regulatory   `json:"Regulatory"`
}

type Information struct {
	Name            string `json:"Name"`
	Type            string `json:"Type"`
	CentralID       string `json:"Central ID"`
	CompanyPlatform string `json:"Company Platform"`
	TechPlatform    string `json:"Tech Platform"`
}

type Architecture struct {
	TargetProductionEnvironment string `json:"Target Production Environment"`
	HostingEnvironment          string `json:"Hosting Environment"`
	InternetFacing              string `json:"Internet Facing"`
}

type Risk struct {
	DataClassification string `json:"Data Classification"`
}

type Regulatory struct {
	SensitiveData string `json:"Sensitive Data Elements (SDE) / Personally Identifiable Information (PII)"`
}

// Remap converts the flat registry response into the nested Application
// shape. "None" values collapse to "No" for the derived yes/no fields.
func Remap(raw Raw) Application {
	internetFacing := "Yes"
	if raw.InternetFacing == "None" {
		internetFacing = "No"
	}
	sensitiveData := "Yes"
	if raw.DataClassification == "None" {
		sensitiveData = "No"
	}

	return Application{
		Information: Information{
			Name:            raw.ApplicationName,
			Type:            raw.ApplicationType,
			CentralID:       raw.CentralID,
			CompanyPlatform: raw.CompanyPlatform,
			TechPlatform:    raw.TechPlatform,
		},
		Architecture: Architecture{
			TargetProductionEnvironment: raw.TargetProductionEnvironment,
			HostingEnvironment:          raw.HostingEnvironment,
			InternetFacing:              internetFacing,
		},
		Risk: Risk{
			DataClassification: raw.DataClassification,
		},
		Regulatory: Regulatory{
			SensitiveData: sensitiveData,
		},
	}
}

// Fetcher is the interface consumed by the orchestrator.
type Fetcher interface {
	Fetch(ctx context.Context, codebase string) (*Application, error)
}

// Config configures the client.
type Config struct {
	// BaseURL is the fetch endpoint, e.g. "http://registry:8082/fetch-metadata".
	BaseURL string
	Timeout time.Duration
	Retry   retry.Policy
}

// Client calls the metadata service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	policy     retry.Policy
	log        *logging.Logger
}

// NewClient creates a metadata client.
func NewClient(cfg Config, log *logging.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("metadata base URL required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = logging.NewNop()
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		policy:     cfg.Retry,
		log:        log.Named("metadata"),
	}, nil
}

// Fetch retrieves and remaps metadata for one codebase. Transient
// failures are retried under the shared policy.
func (c *Client) Fetch(ctx context.Context, codebase string) (*Application, error) {
	var raw Raw
	err := c.policy.Do(ctx, c.log, "fetch metadata", func(ctx context.Context) error {
		return c.fetchOnce(ctx, codebase, &raw)
	})
	if err != nil {
		return nil, err
	}
	app := Remap(raw)
	return &app, nil
}

func (c *Client) fetchOnce(ctx context.Context, codebase string, out *Raw) error {
	payload, err := json.Marshal(map[string]string{"codebase": codebase})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("metadata request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &retry.StatusError{
			StatusCode: resp.StatusCode,
			Service:    "metadata",
			Body:       string(body),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse metadata response: %w", err)
	}
	return nil
}

var _ Fetcher = (*Client)(nil)
