// Package catalog fetches the external tracker's field schema and keeps a snapshot of it.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/benvon/workitem-fieldmap/internal/models"
	"github.com/benvon/workitem-fieldmap/internal/validation"
	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the Azure DevOps Services root
	DefaultBaseURL = "https://dev.azure.com/"
	apiVersion     = "7.0"
	// maxResponseBytes bounds the fields payload read from the tracker
	maxResponseBytes = 8 << 20
)

// Fetcher supplies the external fields available in a project
type Fetcher interface {
	FetchFields(ctx context.Context, project string) ([]Field, error)
}

// Field is an external field as delivered by the catalog boundary.
// ReadOnly only drives suggestions; it never reaches a mapping.
type Field struct {
	models.ExternalField
	ReadOnly bool
}

// AzureDevOpsConfig holds the connection settings for an organization
type AzureDevOpsConfig struct {
	BaseURL             string
	Organization        string
	PersonalAccessToken string
	// BearerToken, when set, is used instead of the personal access token
	BearerToken string
	Timeout     time.Duration
}

// AzureDevOpsClient reads work-item field definitions from Azure DevOps
type AzureDevOpsClient struct {
	baseURL      string
	organization string
	pat          string
	httpClient   *http.Client
}

// NewAzureDevOpsClient creates a client. A bearer token takes precedence over a PAT.
func NewAzureDevOpsClient(cfg AzureDevOpsConfig) (*AzureDevOpsClient, error) {
	if strings.TrimSpace(cfg.Organization) == "" {
		return nil, fmt.Errorf("azure devops organization is required")
	}
	if cfg.PersonalAccessToken == "" && cfg.BearerToken == "" {
		return nil, fmt.Errorf("azure devops personal access token or bearer token is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	pat := cfg.PersonalAccessToken
	httpClient := &http.Client{Timeout: timeout}
	if cfg.BearerToken != "" {
		pat = ""
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.BearerToken, TokenType: "Bearer"})
		httpClient = oauth2.NewClient(context.Background(), ts)
		httpClient.Timeout = timeout
	}

	return &AzureDevOpsClient{
		baseURL:      baseURL,
		organization: strings.TrimSpace(cfg.Organization),
		pat:          pat,
		httpClient:   httpClient,
	}, nil
}

type fieldsResponse struct {
	Count int               `json:"count"`
	Value []json.RawMessage `json:"value"`
}

type fieldDefinition struct {
	Name          string `json:"name"`
	ReferenceName string `json:"referenceName"`
	ReadOnly      bool   `json:"readOnly"`
}

// FieldsURL returns the fields endpoint for project
func (c *AzureDevOpsClient) FieldsURL(project string) string {
	return fmt.Sprintf("%s%s/%s/_apis/wit/fields?api-version=%s",
		c.baseURL,
		url.PathEscape(c.organization),
		url.PathEscape(project),
		apiVersion,
	)
}

// FetchFields lists the work-item fields of project
func (c *AzureDevOpsClient) FetchFields(ctx context.Context, project string) ([]Field, error) {
	if strings.TrimSpace(project) == "" {
		return nil, fmt.Errorf("project is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FieldsURL(project), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build fields request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.pat != "" {
		req.SetBasicAuth("", c.pat)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fields: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch fields: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read fields response: %w", err)
	}

	var payload fieldsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode fields response: %w", err)
	}

	return normalize(payload.Value), nil
}

// normalize turns raw field definitions into validated catalog fields.
// Entries without a reference name are dropped, duplicates keep the first
// occurrence and a missing display name falls back to the reference name.
func normalize(raw []json.RawMessage) []Field {
	out := make([]Field, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, entry := range raw {
		var def fieldDefinition
		if err := json.Unmarshal(entry, &def); err != nil {
			continue
		}
		f := Field{
			ExternalField: models.ExternalField{
				ReferenceName: strings.TrimSpace(def.ReferenceName),
				DisplayName:   strings.TrimSpace(def.Name),
			},
			ReadOnly: def.ReadOnly,
		}
		if err := validation.Validate.Struct(f.ExternalField); err != nil {
			continue
		}
		if seen[f.ReferenceName] {
			continue
		}
		seen[f.ReferenceName] = true
		if f.DisplayName == "" {
			f.DisplayName = f.ReferenceName
		}
		out = append(out, f)
	}
	return out
}
