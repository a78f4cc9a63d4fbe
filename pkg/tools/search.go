package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/Protocol-Lattice/lattice-discord/pkg/models"
)

const maxSearchResults = 3

// TavilySearch queries the Tavily search API and returns the raw results as JSON.
type TavilySearch struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	Client     *http.Client
}

func NewTavilySearch(apiKey string) *TavilySearch {
	return &TavilySearch{APIKey: apiKey, Endpoint: "https://api.tavily.com/search", MaxResults: maxSearchResults}
}

func (t *TavilySearch) Spec() models.ToolSpec {
	return models.ToolSpec{
		Name: "tavily_search_results_json",
		Description: "A search engine optimized for comprehensive, accurate, and trusted results. " +
			"Useful for when you need to answer questions about current events. Input should be a search query.",
		InputSchema: objectSchema([]string{"query"}, map[string]any{
			"query": stringProp("search query to look up"),
		}),
	}
}

type tavilyResult struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

func (t *TavilySearch) Invoke(ctx context.Context, req Request) (Response, error) {
	query := stringArg(req.Arguments, "query")
	if query == "" {
		return Response{}, errors.New("missing 'query' argument")
	}
	if t.APIKey == "" {
		return Response{}, errors.New("tavily api key is not configured")
	}
	limit := t.MaxResults
	if limit <= 0 {
		limit = maxSearchResults
	}

	body, err := json.Marshal(map[string]any{"query": query, "max_results": limit})
	if err != nil {
		return Response{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.APIKey)

	resp, err := defaultHTTPClient(t.Client).Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("tavily request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Response{}, fmt.Errorf("tavily: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded struct {
		Results []tavilyResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Response{}, fmt.Errorf("decode tavily response: %w", err)
	}
	if len(decoded.Results) > limit {
		decoded.Results = decoded.Results[:limit]
	}
	out, err := json.Marshal(decoded.Results)
	if err != nil {
		return Response{}, err
	}
	return Response{Content: string(out)}, nil
}

// DuckDuckGoSearch scrapes the DuckDuckGo HTML endpoint.
type DuckDuckGoSearch struct {
	Endpoint string
	Client   *http.Client
}

func NewDuckDuckGoSearch() *DuckDuckGoSearch {
	return &DuckDuckGoSearch{Endpoint: "https://html.duckduckgo.com/html/"}
}

func (d *DuckDuckGoSearch) Spec() models.ToolSpec {
	return models.ToolSpec{
		Name: "duckduckgo_search",
		Description: "This tool retrieves the top 3 most relevant results for a given query from DuckDuckGo. " +
			"It is ideal for answering open-ended, real-time, or generic questions that require searching across multiple sources on the internet.",
		InputSchema: objectSchema([]string{"query"}, map[string]any{
			"query": stringProp("search query"),
		}),
	}
}

type searchHit struct {
	Title   string
	URL     string
	Snippet string
}

func (d *DuckDuckGoSearch) Invoke(ctx context.Context, req Request) (Response, error) {
	query := stringArg(req.Arguments, "query")
	if query == "" {
		return Response{}, errors.New("missing 'query' argument")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, d.Endpoint+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Accept", "text/html")

	resp, err := defaultHTTPClient(d.Client).Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("duckduckgo request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("duckduckgo: HTTP %d", resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Response{}, fmt.Errorf("parse duckduckgo html: %w", err)
	}
	hits := collectDuckDuckGoHits(doc, maxSearchResults)

	var b strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&b, "%s - %s\n%s\n\n", h.Title, h.URL, h.Snippet)
	}
	return Response{Content: strings.TrimSpace(b.String())}, nil
}

func collectDuckDuckGoHits(doc *html.Node, limit int) []searchHit {
	var hits []searchHit
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(hits) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "result") && !hasClass(n, "result--ad") {
			if h := extractHit(n); h.URL != "" && h.Title != "" {
				hits = append(hits, h)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return hits
}

func extractHit(n *html.Node) searchHit {
	var h searchHit
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result__a"):
				h.URL = cleanDuckDuckGoURL(attr(n, "href"))
				h.Title = nodeText(n)
			case hasClass(n, "result__snippet"):
				h.Snippet = nodeText(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return h
}

// cleanDuckDuckGoURL unwraps "//duckduckgo.com/l/?uddg=<target>" redirects.
func cleanDuckDuckGoURL(raw string) string {
	if !strings.Contains(raw, "duckduckgo.com/l/") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return raw
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// WikipediaSearch finds the best matching article and returns a short extract.
type WikipediaSearch struct {
	Endpoint  string
	Sentences int
	Client    *http.Client
}

func NewWikipediaSearch() *WikipediaSearch {
	return &WikipediaSearch{Endpoint: "https://en.wikipedia.org/w/api.php", Sentences: 3}
}

func (w *WikipediaSearch) Spec() models.ToolSpec {
	return models.ToolSpec{
		Name: "wikipedia_search",
		Description: "Search for a specific topic on Wikipedia and return a concise summary. " +
			"Optimized for factual, encyclopedic queries about people, places, events, concepts, or technologies.",
		InputSchema: objectSchema([]string{"query"}, map[string]any{
			"query": stringProp("topic to look up"),
		}),
	}
}

func (w *WikipediaSearch) Invoke(ctx context.Context, req Request) (Response, error) {
	query := stringArg(req.Arguments, "query")
	if query == "" {
		return Response{}, errors.New("missing 'query' argument")
	}

	var search struct {
		Query struct {
			Search []struct {
				Title string `json:"title"`
			} `json:"search"`
		} `json:"query"`
	}
	err := w.get(ctx, url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {"1"},
		"format":   {"json"},
	}, &search)
	if err != nil {
		return Response{}, err
	}
	if len(search.Query.Search) == 0 {
		return Response{}, fmt.Errorf("no wikipedia article found for %q", query)
	}
	title := search.Query.Search[0].Title

	sentences := w.Sentences
	if sentences <= 0 {
		sentences = 3
	}
	var extract struct {
		Query struct {
			Pages map[string]struct {
				Title   string `json:"title"`
				Extract string `json:"extract"`
			} `json:"pages"`
		} `json:"query"`
	}
	err = w.get(ctx, url.Values{
		"action":      {"query"},
		"prop":        {"extracts"},
		"explaintext": {"1"},
		"exintro":     {"1"},
		"exsentences": {fmt.Sprint(sentences)},
		"redirects":   {"1"},
		"titles":      {title},
		"format":      {"json"},
	}, &extract)
	if err != nil {
		return Response{}, err
	}
	for _, page := range extract.Query.Pages {
		if summary := strings.TrimSpace(page.Extract); summary != "" {
			return Response{Content: fmt.Sprintf("**%s**: %s", title, summary)}, nil
		}
	}
	return Response{}, fmt.Errorf("wikipedia article %q has no summary", title)
}

func (w *WikipediaSearch) get(ctx context.Context, params url.Values, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, w.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("User-Agent", userAgent)
	resp, err := defaultHTTPClient(w.Client).Do(httpReq)
	if err != nil {
		return fmt.Errorf("wikipedia request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wikipedia: HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode wikipedia response: %w", err)
	}
	return nil
}
