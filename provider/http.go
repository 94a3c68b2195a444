package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"localsearch-forecast/engine"
)

// HTTPProvider reads factors from a remote factor service:
//
//	GET {base}/v1/locations/{location}/keywords/{keyword}/factors/{factor}
//	GET {base}/v1/locations/{location}/keywords/{keyword}/snapshot
//
// A 404 response is reported as engine.ErrFactorMissing.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider creates a client for the factor service
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}

	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		// No client timeout, the engine sets a deadline per call
		client: &http.Client{Transport: transport},
	}
}

// GetFactor fetches a single factor reading
func (p *HTTPProvider) GetFactor(ctx context.Context, locationKey, keyword, factorName string) (engine.Reading, error) {
	var reading engine.Reading
	path := fmt.Sprintf("/v1/locations/%s/keywords/%s/factors/%s",
		url.PathEscape(locationKey), url.PathEscape(keyword), url.PathEscape(factorName))
	if err := p.get(ctx, path, &reading); err != nil {
		return engine.Reading{}, fmt.Errorf("%s: %w", factorName, err)
	}
	return reading, nil
}

// GetSnapshot fetches the current keyword snapshot
func (p *HTTPProvider) GetSnapshot(ctx context.Context, locationKey, keyword string) (engine.KeywordSnapshot, error) {
	var snapshot engine.KeywordSnapshot
	path := fmt.Sprintf("/v1/locations/%s/keywords/%s/snapshot", url.PathEscape(locationKey), url.PathEscape(keyword))
	if err := p.get(ctx, path, &snapshot); err != nil {
		return engine.KeywordSnapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	return snapshot, nil
}

func (p *HTTPProvider) get(ctx context.Context, path string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return engine.ErrFactorMissing
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("factor service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
