package enrich

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// reCitationURL finds an embedded URL inside a free-text citation, used as
// the fallback source when the works API has no match.
var reCitationURL = regexp.MustCompile(`https?://[^\s)>\]]+`)

// CitationURL returns the first URL embedded in a citation string, if any.
func CitationURL(citation string) string {
	return reCitationURL.FindString(citation)
}

// FetchLandingMeta scrapes Highwire-style meta tags (citation_doi,
// citation_title, ...) from a publisher landing page. Pages without the
// tags yield ErrNotFound.
func FetchLandingMeta(ctx context.Context, pageURL string) (*Metadata, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{Status: resp.StatusCode, URL: pageURL}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing landing page %s: %w", pageURL, err)
	}
	return metaFromDocument(doc)
}

func metaFromDocument(doc *goquery.Document) (*Metadata, error) {
	meta := func(name string) string {
		val, _ := doc.Find(fmt.Sprintf(`meta[name=%q]`, name)).Attr("content")
		return val
	}

	md := &Metadata{
		DOI:     meta("citation_doi"),
		Title:   meta("citation_title"),
		Journal: meta("citation_journal_title"),
	}
	if md.DOI == "" && md.Title == "" {
		return nil, ErrNotFound
	}
	if date := meta("citation_publication_date"); len(date) >= 4 {
		if year, err := strconv.Atoi(date[:4]); err == nil {
			md.Year = year
		}
	}
	doc.Find(`meta[name="citation_author"]`).Each(func(_ int, s *goquery.Selection) {
		if author, ok := s.Attr("content"); ok && author != "" {
			md.Authors = append(md.Authors, author)
		}
	})
	return md, nil
}
