package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type PdfScrapeResponsePage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type OcrResponse struct {
	Pages []PdfScrapeResponsePage `json:"pages"`
}

// MistralOCR extracts the contents of a PDF document as markdown.
type MistralOCR struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

func NewMistralOCR(apiKey string) *MistralOCR {
	return &MistralOCR{
		APIKey:  apiKey,
		BaseURL: "https://api.mistral.ai/v1/ocr",
		Client:  http.DefaultClient,
	}
}

// ScrapePDF returns the document's pages as markdown.
func (m *MistralOCR) ScrapePDF(ctx context.Context, url string) (string, error) {
	url = strings.Replace(url, "http://", "https://", 1)

	if m.APIKey == "" {
		return "", fmt.Errorf("MISTRAL_API_KEY is not set")
	}

	reqBody := map[string]interface{}{
		"model": "mistral-ocr-latest",
		"document": map[string]string{
			"type":         "document_url",
			"document_url": url,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}
	clientReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	clientReq.Header.Set("Content-Type", "application/json")
	clientReq.Header.Set("Authorization", "Bearer "+m.APIKey)

	resp, err := m.Client.Do(clientReq)
	if err != nil {
		return "", fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API request failed with status: %s, body: %s", resp.Status, string(body))
	}

	var ocrResponse OcrResponse
	if err := json.Unmarshal(body, &ocrResponse); err != nil {
		return "", fmt.Errorf("failed to unmarshal OCR response: %w", err)
	}

	var sb strings.Builder
	for _, page := range ocrResponse.Pages {
		sb.WriteString(fmt.Sprintf("- Page %d -\n", page.Index))
		sb.WriteString(page.Markdown + "\n\n")
	}
	return sb.String(), nil
}
