package tools

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const (
	DefaultSearchURL = "https://html.duckduckgo.com/html/"
	DefaultUserAgent = "Research Agent"
	DefaultTimeout   = 12 * time.Second
	DefaultRateLimit = 1500 * time.Millisecond
	DefaultRegion    = "uk-en"
)

// Page is the readable text of one fetched URL. Text is empty when the fetch failed.
type Page struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// FetchWebTool searches DuckDuckGo and downloads readable page text, caching every
// page under RawDataDir so repeated fetches never hit the network.
type FetchWebTool struct {
	RawDataDir string
	SearchURL  string
	UserAgent  string
	Region     string
	Client     *http.Client
	Limiter    *rate.Limiter
	Logger     *slog.Logger
}

// NewFetchWebTool creates rawDataDir if needed. interval spaces out network fetches.
func NewFetchWebTool(rawDataDir string, interval, timeout time.Duration) (*FetchWebTool, error) {
	if err := os.MkdirAll(rawDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create raw data dir: %w", err)
	}
	if interval <= 0 {
		interval = DefaultRateLimit
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &FetchWebTool{
		RawDataDir: rawDataDir,
		SearchURL:  DefaultSearchURL,
		UserAgent:  DefaultUserAgent,
		Region:     DefaultRegion,
		Client:     &http.Client{Timeout: timeout},
		Limiter:    rate.NewLimiter(rate.Every(interval), 1),
		Logger:     slog.Default(),
	}, nil
}

// Search returns up to n result URLs for query.
func (t *FetchWebTool) Search(ctx context.Context, query string, n int) ([]string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("kl", t.Region)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.SearchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("User-Agent", t.UserAgent)

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	urls := parseResultLinks(doc)
	if n > 0 && len(urls) > n {
		urls = urls[:n]
	}
	t.Logger.Info("Web search complete", "query", query, "results", len(urls))
	return urls, nil
}

// FetchURL returns the readable text of rawURL, from cache when available.
func (t *FetchWebTool) FetchURL(ctx context.Context, rawURL string) (string, error) {
	path := filepath.Join(t.RawDataDir, CacheFileName(rawURL))

	cached, err := os.ReadFile(path)
	if err == nil {
		t.Logger.Debug("Serving cached page", "url", rawURL)
		return string(cached), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to read cache: %w", err)
	}

	if err := t.Limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", t.UserAgent)

	resp, err := t.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s returned status %d", rawURL, resp.StatusCode)
	}

	text, err := ExtractText(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to extract text from %s: %w", rawURL, err)
	}

	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("failed to write cache: %w", err)
	}
	return text, nil
}

// FetchQuery searches for query and fetches every result. Pages that fail to
// download are returned with empty text.
func (t *FetchWebTool) FetchQuery(ctx context.Context, query string, n int) ([]Page, error) {
	urls, err := t.Search(ctx, query, n)
	if err != nil {
		return nil, err
	}

	pages := make([]Page, 0, len(urls))
	for _, u := range urls {
		text, err := t.FetchURL(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return pages, ctx.Err()
			}
			t.Logger.Warn("Failed to fetch page", "url", u, "error", err)
		}
		pages = append(pages, Page{URL: u, Text: text})
	}
	return pages, nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// CacheFileName maps a URL to "<sanitized url, 50 chars>_<md5 prefix>.txt".
func CacheFileName(rawURL string) string {
	sum := md5.Sum([]byte(rawURL))
	h := hex.EncodeToString(sum[:])[:12]

	base := unsafeFileChars.ReplaceAllString(rawURL, "_")
	if len(base) > 50 {
		base = base[:50]
	}
	return base + "_" + h + ".txt"
}

var skippedElements = map[string]bool{
	"script": true,
	"style":  true,
	"header": true,
	"footer": true,
	"nav":    true,
}

// ExtractText returns the visible text of an HTML document, one trimmed non-empty line per line.
func ExtractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var lines []string
	for _, line := range strings.Split(sb.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// parseResultLinks collects result anchors from a DuckDuckGo HTML results page,
// unwrapping its /l/?uddg= redirect links.
func parseResultLinks(doc *html.Node) []string {
	var urls []string
	seen := map[string]bool{}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			if href := resolveResultHref(attr(n, "href")); href != "" && !seen[href] {
				seen[href] = true
				urls = append(urls, href)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return urls
}

func resolveResultHref(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return href
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
