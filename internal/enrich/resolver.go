// Package enrich resolves extracted citations to external identifiers and
// fetches bibliographic metadata. Absence of a match is a recorded
// "unresolved" outcome, never an error.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound means the service answered but had no record for the query.
var ErrNotFound = errors.New("no bibliographic record found")

// Metadata is the fetched record for a resolved identifier.
type Metadata struct {
	DOI     string   `json:"doi"`
	Title   string   `json:"title"`
	Journal string   `json:"journal,omitempty"`
	Year    int      `json:"year,omitempty"`
	Authors []string `json:"authors,omitempty"`
}

// Resolution is the per-citation outcome persisted by the enrichment stage.
type Resolution struct {
	Citation string    `json:"citation"`
	Status   string    `json:"status"` // "resolved" or "unresolved"
	DOI      string    `json:"doi,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Resolution statuses.
const (
	StatusResolved   = "resolved"
	StatusUnresolved = "unresolved"
)

// Resolver is the enrichment capability: citation to identifier, identifier
// to metadata.
type Resolver interface {
	Resolve(ctx context.Context, citation string) (doi string, err error)
	Fetch(ctx context.Context, doi string) (*Metadata, error)
}

// HTTPError carries the status of a failed request so callers can decide
// whether to retry.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request to %s failed with status %d", e.URL, e.Status)
}

// Transient reports whether an enrichment error is worth retrying.
func Transient(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status == http.StatusTooManyRequests || httpErr.Status >= 500
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}
	// Network-level failures (no HTTP status at all) are transient.
	var urlErr *url.Error
	return errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded)
}

// CrossrefResolver resolves citations against a CrossRef-style works API.
type CrossrefResolver struct {
	baseURL string
	client  *http.Client
}

// NewCrossrefResolver builds a resolver for the given API base URL.
func NewCrossrefResolver(baseURL string) *CrossrefResolver {
	return &CrossrefResolver{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type worksResponse struct {
	Message struct {
		Items []workItem `json:"items"`
	} `json:"message"`
}

type workResponse struct {
	Message workItem `json:"message"`
}

type workItem struct {
	DOI       string   `json:"DOI"`
	Title     []string `json:"title"`
	Container []string `json:"container-title"`
	Author    []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
	} `json:"author"`
	Issued struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"issued"`
}

// Resolve finds the best-matching DOI for a free-text citation. A top hit
// whose title does not sufficiently overlap the citation is rejected, to
// avoid attaching the wrong record to a mangled reference.
func (r *CrossrefResolver) Resolve(ctx context.Context, citation string) (string, error) {
	endpoint := fmt.Sprintf("%s/works?query.bibliographic=%s&rows=1",
		r.baseURL, url.QueryEscape(citation))

	var resp worksResponse
	if err := r.getJSON(ctx, endpoint, &resp); err != nil {
		return "", err
	}
	if len(resp.Message.Items) == 0 {
		return "", ErrNotFound
	}
	item := resp.Message.Items[0]
	if item.DOI == "" || !titleMatches(citation, item.Title) {
		return "", ErrNotFound
	}
	return item.DOI, nil
}

// Fetch retrieves the full record for a DOI.
func (r *CrossrefResolver) Fetch(ctx context.Context, doi string) (*Metadata, error) {
	endpoint := fmt.Sprintf("%s/works/%s", r.baseURL, url.PathEscape(doi))

	var resp workResponse
	if err := r.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	return itemToMetadata(resp.Message), nil
}

func (r *CrossrefResolver) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return &HTTPError{Status: resp.StatusCode, URL: endpoint}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", endpoint, err)
	}
	return nil
}

func itemToMetadata(item workItem) *Metadata {
	md := &Metadata{DOI: item.DOI}
	if len(item.Title) > 0 {
		md.Title = item.Title[0]
	}
	if len(item.Container) > 0 {
		md.Journal = item.Container[0]
	}
	if len(item.Issued.DateParts) > 0 && len(item.Issued.DateParts[0]) > 0 {
		md.Year = item.Issued.DateParts[0][0]
	}
	for _, a := range item.Author {
		name := strings.TrimSpace(a.Given + " " + a.Family)
		if name != "" {
			md.Authors = append(md.Authors, name)
		}
	}
	return md
}

// titleMatches checks that at least half of the candidate title's
// significant tokens appear in the citation text.
func titleMatches(citation string, titles []string) bool {
	if len(titles) == 0 {
		return false
	}
	cite := strings.ToLower(citation)
	tokens := strings.Fields(strings.ToLower(titles[0]))
	if len(tokens) == 0 {
		return false
	}
	matched := 0
	significant := 0
	for _, tok := range tokens {
		if len(tok) < 4 {
			continue
		}
		significant++
		if strings.Contains(cite, tok) {
			matched++
		}
	}
	if significant == 0 {
		return true
	}
	return float64(matched)/float64(significant) >= 0.5
}
