package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mikeboe/research-canvas/pkg/state"
)

// TavilyClient talks to the Tavily search and extract API.
type TavilyClient struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

func NewTavilyClient(apiKey string) *TavilyClient {
	return &TavilyClient{
		APIKey:  apiKey,
		BaseURL: "https://api.tavily.com",
		Client:  http.DefaultClient,
	}
}

type tavilySearchRequest struct {
	Query          string   `json:"query"`
	Topic          string   `json:"topic,omitempty"`
	Days           int      `json:"days,omitempty"`
	MaxResults     int      `json:"max_results,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
}

type tavilySearchResponse struct {
	Results []state.Source `json:"results"`
}

type tavilyExtractRequest struct {
	URLs []string `json:"urls"`
}

type tavilyExtractResponse struct {
	Results []Extracted `json:"results"`
}

func (t *TavilyClient) Search(ctx context.Context, q Query) ([]state.Source, error) {
	var out tavilySearchResponse
	err := t.post(ctx, "/search", tavilySearchRequest{
		Query:          q.Text,
		Topic:          q.Topic,
		Days:           q.Days,
		MaxResults:     q.MaxResults,
		IncludeDomains: q.Domains,
	}, &out)
	if err != nil {
		return nil, &CapabilityError{Capability: "tavily search", Err: err}
	}
	return out.Results, nil
}

func (t *TavilyClient) Extract(ctx context.Context, urls []string) ([]Extracted, error) {
	var out tavilyExtractResponse
	if err := t.post(ctx, "/extract", tavilyExtractRequest{URLs: urls}, &out); err != nil {
		return nil, &CapabilityError{Capability: "tavily extract", Err: err}
	}
	return out.Results, nil
}

func (t *TavilyClient) post(ctx context.Context, path string, body, out any) error {
	if t.APIKey == "" {
		return fmt.Errorf("TAVILY_API_KEY is not set")
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.APIKey)

	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API request failed with status: %s, body: %s", resp.Status, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
