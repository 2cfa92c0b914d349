package fhir

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/fhirgraph/internal/metrics"
)

// maxBundleBytes caps one downloaded page
const maxBundleBytes = 64 << 20

// Client downloads searchset bundles from a FHIR REST server into bundle
// files the batch ingester can read
type Client struct {
	httpClient *http.Client
	baseURL    string
	pageSize   int
	maxPages   int
}

// FetchStats counts downloaded pages and entries per resource type
type FetchStats struct {
	Pages   map[string]int `json:"pages"`
	Entries map[string]int `json:"entries"`
	Files   []string       `json:"files"`
}

// NewClient creates a FHIR client. maxPages <= 0 follows every next link.
func NewClient(baseURL string, timeout time.Duration, pageSize, maxPages int) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: pageSize,
		maxPages: maxPages,
	}
}

// FetchAll downloads every supported resource type into dir, one file per
// page named <type>_<page>.json
func (fc *Client) FetchAll(ctx context.Context, dir string) (*FetchStats, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	stats := &FetchStats{
		Pages:   make(map[string]int),
		Entries: make(map[string]int),
	}
	for _, rt := range SupportedResourceTypes() {
		log.Info().Str("resource_type", rt.String()).Msg("Starting fetch")
		if err := fc.fetchType(ctx, dir, rt, stats); err != nil {
			return stats, fmt.Errorf("failed to fetch %s: %w", rt, err)
		}
		log.Info().
			Str("resource_type", rt.String()).
			Int("pages", stats.Pages[rt.String()]).
			Int("entries", stats.Entries[rt.String()]).
			Msg("Completed fetch")
	}
	return stats, nil
}

func (fc *Client) fetchType(ctx context.Context, dir string, rt ResourceType, stats *FetchStats) error {
	next := fc.searchURL(rt)
	for page := 1; next != ""; page++ {
		if fc.maxPages > 0 && page > fc.maxPages {
			log.Info().Str("resource_type", rt.String()).Int("max_pages", fc.maxPages).Msg("Page limit reached")
			return nil
		}

		data, err := fc.fetchPage(ctx, rt, next)
		if err != nil {
			return err
		}
		bundle, err := ParseBundle(data)
		if err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}

		name := fmt.Sprintf("%s_%04d.json", strings.ToLower(rt.String()), page)
		path := filepath.Join(dir, name)
		if err := writeFileAtomic(path, data); err != nil {
			return err
		}

		stats.Pages[rt.String()]++
		stats.Entries[rt.String()] += len(bundle.Entries)
		stats.Files = append(stats.Files, path)

		next, err = fc.resolveNext(bundle.Next)
		if err != nil {
			return err
		}
	}
	return nil
}

func (fc *Client) searchURL(rt ResourceType) string {
	u := fmt.Sprintf("%s/%s", fc.baseURL, rt)
	if fc.pageSize > 0 {
		u += fmt.Sprintf("?_count=%d", fc.pageSize)
	}
	return u
}

// resolveNext makes a relative next link absolute against the base URL
func (fc *Client) resolveNext(next string) (string, error) {
	if next == "" {
		return "", nil
	}
	base, err := url.Parse(fc.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("invalid next link %q: %w", next, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// fetchPage GETs one searchset page
func (fc *Client) fetchPage(ctx context.Context, rt ResourceType, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/fhir+json")

	start := time.Now()
	resp, err := fc.httpClient.Do(req)
	if err != nil {
		metrics.RecordFetch(rt.String(), "error", start)
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordFetch(rt.String(), "error", start)
		return nil, fmt.Errorf("FHIR server returned status %d for %s", resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBundleBytes))
	if err != nil {
		metrics.RecordFetch(rt.String(), "error", start)
		return nil, fmt.Errorf("failed to read response body for %s: %w", rt, err)
	}
	metrics.RecordFetch(rt.String(), "success", start)
	return body, nil
}

// writeFileAtomic writes through a temp file so a concurrent directory scan
// never sees a partial *.json file
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}
