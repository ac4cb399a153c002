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
)

const DefaultArxivURL = "https://export.arxiv.org/api/query"

// SearchResult is a paper returned by an arXiv query
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
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

// ArxivClient queries the arXiv Atom API
type ArxivClient struct {
	BaseURL string
	Client  *http.Client
}

// NewArxivClient returns a client for the public arXiv endpoint
func NewArxivClient() *ArxivClient {
	return &ArxivClient{BaseURL: DefaultArxivURL, Client: &http.Client{Timeout: DefaultTimeout}}
}

// Search returns up to maxResults papers for query. maxResults <= 0 means 5.
func (a *ArxivClient) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	params := url.Values{}
	params.Add("search_query", query)
	params.Add("max_results", strconv.Itoa(maxResults))
	params.Add("start", "0")
	apiURL := a.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create API request: %w", err)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("arXiv API returned non-200 status code", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("API returned non-200 status code: %d", resp.StatusCode)
	}

	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal XML: %w", err)
	}

	results := make([]SearchResult, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		title := collapseSpace(entry.Title)
		if title == "" {
			continue
		}
		results = append(results, SearchResult{
			Title:   title,
			URL:     pdfLink(entry.Link),
			Snippet: collapseSpace(entry.Summary),
		})
	}

	slog.Info("arXiv search complete", "query", query, "count", len(results))
	return results, nil
}

func pdfLink(links []ArxivLink) string {
	for _, link := range links {
		if link.Type == "application/pdf" {
			return link.Href
		}
	}
	return ""
}

// arXiv wraps titles and abstracts at fixed width.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
