// Package arxiv queries the public arXiv Atom API and exposes it as the
// live-search tool.
package arxiv

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const DefaultBaseURL = "https://export.arxiv.org/api/query"

type Paper struct {
	ID        string
	Title     string
	Summary   string
	URL       string
	Authors   []string
	Published time.Time
}

type Options struct {
	BaseURL string
	Timeout time.Duration
	// Attempts is the total number of tries per query, including the first.
	Attempts int
	// MinInterval spaces consecutive requests; arXiv asks for one every 3s.
	MinInterval time.Duration
	HTTPClient  *http.Client
}

type Client struct {
	baseURL  string
	http     *http.Client
	attempts int
	gate     *gate
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Attempts < 1 {
		opts.Attempts = 3
	}
	if opts.HTTPClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		opts.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:  opts.BaseURL,
		http:     opts.HTTPClient,
		attempts: opts.Attempts,
		gate:     &gate{interval: opts.MinInterval},
	}
}

// gate serializes requests so that at most one starts per interval.
type gate struct {
	mu       sync.Mutex
	interval time.Duration
	readyAt  time.Time
}

func (g *gate) wait(ctx context.Context) error {
	if g.interval <= 0 {
		return nil
	}
	g.mu.Lock()
	wait := time.Until(g.readyAt)
	if wait < 0 {
		wait = 0
	}
	g.readyAt = time.Now().Add(wait + g.interval)
	g.mu.Unlock()
	if wait == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// Search returns up to limit papers for the query, retrying transient
// failures with exponential backoff. No matches is an empty slice, not an error.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Paper, error) {
	if limit <= 0 {
		limit = 5
	}
	q := url.Values{}
	q.Set("search_query", "all:"+query)
	q.Set("start", "0")
	q.Set("max_results", strconv.Itoa(limit))
	endpoint := c.baseURL + "?" + q.Encode()

	var papers []Paper
	op := func() error {
		var err error
		papers, err = c.fetch(ctx, endpoint)
		return err
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(newBackOff(), uint64(c.attempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return papers, nil
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return b
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("arxiv http %d: %s", e.code, e.body)
}

func (c *Client) fetch(ctx context.Context, endpoint string) ([]Paper, error) {
	if err := c.gate.wait(ctx); err != nil {
		return nil, backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/atom+xml")
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		serr := &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}
	papers, err := parseFeed(resp.Body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return papers, nil
}

type atomFeed struct {
	Entries []atomEntry `xml:"http://www.w3.org/2005/Atom entry"`
}

type atomEntry struct {
	ID        string       `xml:"http://www.w3.org/2005/Atom id"`
	Title     string       `xml:"http://www.w3.org/2005/Atom title"`
	Summary   string       `xml:"http://www.w3.org/2005/Atom summary"`
	Published string       `xml:"http://www.w3.org/2005/Atom published"`
	Authors   []atomAuthor `xml:"http://www.w3.org/2005/Atom author"`
}

type atomAuthor struct {
	Name string `xml:"http://www.w3.org/2005/Atom name"`
}

var errAPI = errors.New("arxiv api error")

func parseFeed(r io.Reader) ([]Paper, error) {
	var feed atomFeed
	if err := xml.NewDecoder(r).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decoding arxiv feed: %w", err)
	}
	papers := make([]Paper, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		if strings.Contains(e.ID, "/api/errors") {
			return nil, fmt.Errorf("%w: %s", errAPI, collapse(e.Summary))
		}
		p := Paper{
			ID:      entryID(e.ID),
			Title:   collapse(e.Title),
			Summary: collapse(e.Summary),
		}
		if p.Title == "" {
			p.Title = "Untitled"
		}
		p.URL = "https://arxiv.org/abs/" + p.ID
		for _, a := range e.Authors {
			if name := collapse(a.Name); name != "" {
				p.Authors = append(p.Authors, name)
			}
		}
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published)); err == nil {
			p.Published = t
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// entryID returns the arXiv identifier from an entry id URL such as
// http://arxiv.org/abs/2401.01234v1.
func entryID(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "/abs/"); i >= 0 {
		return raw[i+len("/abs/"):]
	}
	if i := strings.LastIndexByte(raw, '/'); i >= 0 {
		return raw[i+1:]
	}
	return raw
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
