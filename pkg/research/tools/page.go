package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
)

// PageExtractor downloads pages and reduces them to readable text. PDF links
// go through OCR when it is configured.
type PageExtractor struct {
	Client   *http.Client
	OCR      *MistralOCR
	MaxChars int
	Logger   *slog.Logger
}

func NewPageExtractor(ocr *MistralOCR) *PageExtractor {
	return &PageExtractor{
		Client:   http.DefaultClient,
		OCR:      ocr,
		MaxChars: 20000,
		Logger:   slog.Default(),
	}
}

// Extract fetches every URL. Individual failures are skipped; an error is
// returned only when nothing could be fetched.
func (p *PageExtractor) Extract(ctx context.Context, urls []string) ([]Extracted, error) {
	var out []Extracted
	var lastErr error
	for _, link := range urls {
		text, err := p.fetch(ctx, link)
		if err != nil {
			p.Logger.Warn("Failed to extract page", "url", link, "error", err)
			lastErr = err
			continue
		}
		text = truncate(text, p.MaxChars)
		out = append(out, Extracted{URL: link, RawContent: text})
	}
	if len(out) == 0 && lastErr != nil {
		return nil, &CapabilityError{Capability: "page extract", Err: lastErr}
	}
	return out, nil
}

func (p *PageExtractor) fetch(ctx context.Context, link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid url: %q", link)
	}
	if p.OCR != nil && p.OCR.APIKey != "" && strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
		return p.OCR.ScrapePDF(ctx, link)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	article, err := readability.FromReader(strings.NewReader(string(body)), u)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}
	return strings.TrimSpace(article.TextContent), nil
}

// truncate cuts s to at most n bytes without splitting a character.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
