package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/Protocol-Lattice/lattice-discord/pkg/models"
)

// ReadWebpage fetches a page and returns its readable article text.
type ReadWebpage struct {
	MaxChars int
	Client   *http.Client
}

func NewReadWebpage() *ReadWebpage { return &ReadWebpage{MaxChars: 4000} }

func (r *ReadWebpage) Spec() models.ToolSpec {
	return models.ToolSpec{
		Name:        "read_webpage",
		Description: "Fetch a web page by URL and return its main article text. Use it after a search to read a result in detail.",
		InputSchema: objectSchema([]string{"url"}, map[string]any{
			"url": stringProp("absolute http(s) URL of the page"),
		}),
	}
}

func (r *ReadWebpage) Invoke(ctx context.Context, req Request) (Response, error) {
	link := stringArg(req.Arguments, "url", "link")
	if link == "" {
		return Response{}, errors.New("missing 'url' argument")
	}
	pageURL, err := url.Parse(link)
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") || pageURL.Host == "" {
		return Response{}, fmt.Errorf("invalid url %q", link)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("User-Agent", userAgent)
	resp, err := defaultHTTPClient(r.Client).Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("fetch %s: %w", link, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("fetch %s: HTTP %d", link, resp.StatusCode)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, 2<<20), pageURL)
	if err != nil {
		return Response{}, fmt.Errorf("extract article: %w", err)
	}
	text := strings.TrimSpace(article.TextContent)
	if r.MaxChars > 0 && len(text) > r.MaxChars {
		text = text[:r.MaxChars]
	}
	if title := strings.TrimSpace(article.Title); title != "" {
		text = title + "\n\n" + text
	}
	return Response{Content: text}, nil
}
