package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/nrcae/ai-s3-search/internal/cli"
	"github.com/nrcae/ai-s3-search/internal/models"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

func searchViaHTTP(ctx context.Context, serverURL string, query models.SearchQuery) (*cli.SearchResults, error) {
	params := url.Values{"q": {query.Query}}
	if query.TopK > 0 {
		params.Set("top_k", strconv.Itoa(query.TopK))
	}
	if query.SourceID != "" {
		params.Set("source", query.SourceID)
	}
	var res cli.SearchResults
	if err := getJSON(ctx, serverURL+"/api/v1/search?"+params.Encode(), &res); err != nil {
		return nil, err
	}
	res.Took = time.Duration(res.TookMs) * time.Millisecond
	return &res, nil
}

func statusViaHTTP(ctx context.Context, serverURL string) (models.Status, error) {
	var st models.Status
	err := getJSON(ctx, serverURL+"/api/v1/status", &st)
	return st, err
}

func getJSON(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(b, &body) == nil && body.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
