package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lorenzotomasdiez/summarize/internal/models"
)

// DefaultBaseURL is the public OpenRouter API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

const (
	// catalogTimeout bounds ListModels only; generation calls are bounded by
	// their caller's context.
	catalogTimeout  = 30 * time.Second
	maxCatalogBytes = 32 << 20
	maxErrorSnippet = 512
)

var (
	// ErrCatalogUnavailable is returned when the catalog endpoint cannot be
	// reached or answers with a non-2xx status.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	// ErrCatalogMalformed is returned when the catalog body is not the
	// expected {"data": [...]} document.
	ErrCatalogMalformed = errors.New("catalog malformed")
)

// Client is an OpenRouter API client.
type Client struct {
	httpClient     *http.Client
	apiKey         string
	baseURL        string
	catalogTimeout time.Duration
}

// NewClient creates a new Client with the default OpenRouter base URL.
func NewClient(apiKey string) *Client {
	return NewClientWithBaseURL(apiKey, DefaultBaseURL)
}

// NewClientWithBaseURL creates a new Client with a custom base URL. An empty
// baseURL means DefaultBaseURL.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient:     &http.Client{},
		apiKey:         apiKey,
		baseURL:        strings.TrimRight(baseURL, "/"),
		catalogTimeout: catalogTimeout,
	}
}

// ListModels retrieves the raw model list from OpenRouter. It does not retry.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	if c.catalogTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.catalogTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("openrouter: %w: %w", ErrCatalogUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openrouter: %w: %w", ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorSnippet))
		return nil, fmt.Errorf("openrouter: %w: unexpected status %d: %s",
			ErrCatalogUnavailable, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBytes))
	if err != nil {
		return nil, fmt.Errorf("openrouter: %w: reading body: %w", ErrCatalogUnavailable, err)
	}

	var env modelsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("openrouter: %w: %w", ErrCatalogMalformed, err)
	}
	if len(bytes.TrimSpace(env.Data)) == 0 || bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		return nil, fmt.Errorf("openrouter: %w: missing data array", ErrCatalogMalformed)
	}
	var list []Model
	if err := json.Unmarshal(env.Data, &list); err != nil {
		return nil, fmt.Errorf("openrouter: %w: data: %w", ErrCatalogMalformed, err)
	}
	return list, nil
}

// FetchCatalog lists models and converts them into catalog entries, keeping
// response order. Rows without an id are skipped.
func (c *Client) FetchCatalog(ctx context.Context) ([]models.CatalogEntry, error) {
	list, err := c.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]models.CatalogEntry, 0, len(list))
	for _, m := range list {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			continue
		}
		entry := models.CatalogEntry{ID: id, DisplayName: strings.TrimSpace(m.Name)}
		if m.ContextLength != nil {
			entry.ContextLength = *m.ContextLength
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
