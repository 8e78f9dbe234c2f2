// Package tavily wraps the Tavily crawl API used for website ingestion.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/mysteryisfun/Voice-platform/pkg/logger"
	"github.com/mysteryisfun/Voice-platform/pkg/retry"
)

const crawlEndpoint = "https://api.tavily.com/crawl"

type Client struct {
	apiKey     string
	maxDepth   int
	maxBreadth int
	httpClient *http.Client
	retryCfg   retry.Config
}

type crawlResponse struct {
	Results []struct {
		URL        string `json:"url"`
		Title      string `json:"title"`
		RawContent string `json:"raw_content"`
	} `json:"results"`
}

// CrawlResult is the combined text of every same-domain page found.
type CrawlResult struct {
	URL        string
	Domain     string
	Content    string
	PagesFound int
}

func NewClient(apiKey string, maxDepth, maxBreadth, timeoutSec int) *Client {
	if maxDepth == 0 {
		maxDepth = 1
	}
	if maxBreadth == 0 {
		maxBreadth = 1
	}
	if timeoutSec == 0 {
		timeoutSec = 60
	}

	return &Client{
		apiKey:     apiKey,
		maxDepth:   maxDepth,
		maxBreadth: maxBreadth,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSec) * time.Second,
		},
		retryCfg: retry.Config{
			MaxAttempts:    3,
			InitialDelay:   time.Second,
			MaxDelay:       10 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			Logger:         logger.GetLogger(),
		},
	}
}

// Crawl fetches site content for rawURL, restricted to the URL's own domain
// so a crawl never wanders off into linked sites.
func (c *Client) Crawl(ctx context.Context, rawURL string) (*CrawlResult, error) {
	domain, err := extractDomain(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid website url: %w", err)
	}

	logger.Info("Starting website crawl",
		zap.String("url", rawURL),
		zap.String("domain", domain),
	)

	reqBody, err := json.Marshal(map[string]interface{}{
		"url":            rawURL,
		"max_depth":      c.maxDepth,
		"max_breadth":    c.maxBreadth,
		"extract_depth":  "advanced",
		"format":         "text",
		"select_domains": []string{domain},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode crawl request: %w", err)
	}

	crawlResp, err := retry.DoWithResult(ctx, c.retryCfg, func() (crawlResponse, error) {
		var decoded crawlResponse

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, crawlEndpoint, bytes.NewReader(reqBody))
		if err != nil {
			return decoded, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return decoded, fmt.Errorf("crawl request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return decoded, fmt.Errorf("crawl returned status %d: %s", resp.StatusCode, string(body))
		}

		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return decoded, fmt.Errorf("failed to decode crawl response: %w", err)
		}
		return decoded, nil
	})
	if err != nil {
		return nil, err
	}

	var pages []string
	for _, r := range crawlResp.Results {
		resultDomain, err := extractDomain(r.URL)
		if err != nil || resultDomain != domain {
			continue
		}

		content := cleanContent(r.RawContent)
		if content == "" {
			continue
		}

		pages = append(pages, fmt.Sprintf("Page: %s\nURL: %s\n\n%s", r.Title, r.URL, content))
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("crawl returned no usable pages for %s", domain)
	}

	combined := strings.Join(pages, "\n\n")

	logger.Info("Website crawl completed",
		zap.String("domain", domain),
		zap.Int("pages", len(pages)),
		zap.Int("characters", len(combined)),
	)

	return &CrawlResult{
		URL:        rawURL,
		Domain:     domain,
		Content:    combined,
		PagesFound: len(pages),
	}, nil
}

// cleanContent strips markup when the API hands back HTML instead of text.
func cleanContent(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	if !strings.HasPrefix(trimmed, "<") {
		return trimmed
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed))
	if err != nil {
		return trimmed
	}

	doc.Find("script, style, nav, footer, header, aside").Remove()
	text := doc.Find("body").Text()
	if text == "" {
		text = doc.Text()
	}

	return strings.Join(strings.Fields(text), " ")
}

func extractDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}

	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www."), nil
}
