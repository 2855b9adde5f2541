package rankcheck

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/wolfman30/defense-intake/pkg/logging"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

const (
	pageSize = 10
	maxPages = 3
)

var ErrNotConfigured = errors.New("rankcheck: search api not configured")

// Searcher returns result links for one page of a query. start is 1-based.
type Searcher interface {
	Search(ctx context.Context, query string, start int) ([]string, error)
}

// CustomSearch queries a Programmable Search Engine.
type CustomSearch struct {
	svc      *customsearch.Service
	engineID string
}

func NewCustomSearch(ctx context.Context, apiKey, engineID string, opts ...option.ClientOption) (*CustomSearch, error) {
	if apiKey == "" || engineID == "" {
		return nil, ErrNotConfigured
	}
	svc, err := customsearch.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("rankcheck: create search service: %w", err)
	}
	return &CustomSearch{svc: svc, engineID: engineID}, nil
}

func (c *CustomSearch) Search(ctx context.Context, query string, start int) ([]string, error) {
	res, err := c.svc.Cse.List().Cx(c.engineID).Q(query).Start(int64(start)).Num(pageSize).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("rankcheck: search %q: %w", query, err)
	}
	links := make([]string, 0, len(res.Items))
	for _, item := range res.Items {
		links = append(links, item.Link)
	}
	return links, nil
}

// Result is where the site ranks for one keyword. Position is 1-based and 0
// when the site is not in the pages checked.
type Result struct {
	Keyword  string `json:"keyword"`
	Position int    `json:"position"`
	URL      string `json:"url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Checker finds the site's position in search results.
type Checker struct {
	search Searcher
	domain string
	logger *logging.Logger
}

func NewChecker(search Searcher, domain string, logger *logging.Logger) *Checker {
	if search == nil {
		panic("rankcheck: searcher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Checker{search: search, domain: normalizeHost(domain), logger: logger}
}

// Check pages through up to three result pages for keyword.
func (c *Checker) Check(ctx context.Context, keyword string) (Result, error) {
	keyword = strings.TrimSpace(keyword)
	res := Result{Keyword: keyword}
	if keyword == "" {
		return res, errors.New("rankcheck: keyword is required")
	}
	seen := 0
	for page := 0; page < maxPages; page++ {
		links, err := c.search.Search(ctx, keyword, page*pageSize+1)
		if err != nil {
			return res, err
		}
		for _, link := range links {
			seen++
			if c.matches(link) {
				res.Position = seen
				res.URL = link
				return res, nil
			}
		}
		if len(links) < pageSize {
			break
		}
	}
	c.logger.Debug("rankcheck: site not found", "keyword", keyword, "results_seen", seen)
	return res, nil
}

// CheckAll checks each keyword; a failure on one keyword is recorded on its
// result and does not stop the rest.
func (c *Checker) CheckAll(ctx context.Context, keywords []string) []Result {
	out := make([]Result, 0, len(keywords))
	for _, kw := range keywords {
		res, err := c.Check(ctx, kw)
		if err != nil {
			c.logger.Warn("rankcheck: check failed", "keyword", kw, "error", err)
			res.Error = err.Error()
		}
		out = append(out, res)
	}
	return out
}

func (c *Checker) matches(link string) bool {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return false
	}
	host := normalizeHost(u.Hostname())
	return host == c.domain || strings.HasSuffix(host, "."+c.domain)
}

func normalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, "https://")
	h = strings.TrimPrefix(h, "http://")
	h = strings.TrimSuffix(h, "/")
	return strings.TrimPrefix(h, "www.")
}
