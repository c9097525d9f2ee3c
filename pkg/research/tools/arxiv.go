package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mikeboe/research-canvas/pkg/state"
)

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []ArxivLink `xml:"link"`
}

// ArxivLink struct to hold arXiv link data
type ArxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

// ArxivFeed struct to hold the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// ArxivSearcher queries the arXiv API. arXiv does not score results, so
// scores are derived from rank.
type ArxivSearcher struct {
	BaseURL string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewArxivSearcher() *ArxivSearcher {
	return &ArxivSearcher{
		BaseURL: "https://export.arxiv.org/api/query",
		Client:  http.DefaultClient,
		Logger:  slog.Default(),
	}
}

func (a *ArxivSearcher) Search(ctx context.Context, q Query) ([]state.Source, error) {
	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	params := url.Values{}
	params.Add("search_query", "all:"+q.Text)
	params.Add("max_results", strconv.Itoa(maxResults))
	params.Add("start", "0")
	if q.Topic == "news" {
		params.Add("sortBy", "submittedDate")
		params.Add("sortOrder", "descending")
	}
	apiURL := a.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, &CapabilityError{Capability: "arxiv search", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		a.Logger.Error("API returned non-200 status code", "status", resp.StatusCode, "body", string(body))
		return nil, &CapabilityError{
			Capability: "arxiv search",
			Err:        fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}
	a.Logger.Info("Arxiv search successful", "query", q.Text, "count", len(feed.Entry))

	return feed.sources(), nil
}

func (f ArxivFeed) sources() []state.Source {
	n := len(f.Entry)
	out := make([]state.Source, 0, n)
	for i, entry := range f.Entry {
		link := entry.ID
		for _, l := range entry.Link {
			if l.Type == "application/pdf" {
				link = l.Href
				break
			}
		}
		out = append(out, state.Source{
			Title:   strings.Join(strings.Fields(entry.Title), " "),
			URL:     strings.TrimSpace(link),
			Content: strings.TrimSpace(entry.Summary),
			Score:   1 - 0.5*float64(i)/float64(n),
		})
	}
	return out
}
