package enrich

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const worksHit = `{
	"message": {
		"items": [{
			"DOI": "10.1056/nejmoa1504720",
			"title": ["Empagliflozin, Cardiovascular Outcomes, and Mortality in Type 2 Diabetes"],
			"container-title": ["New England Journal of Medicine"],
			"author": [{"given": "Bernard", "family": "Zinman"}],
			"issued": {"date-parts": [[2015, 11]]}
		}]
	}
}`

func TestResolve_ReturnsMatchingDOI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("rows"))
		assert.NotEmpty(t, r.URL.Query().Get("query.bibliographic"))
		fmt.Fprint(w, worksHit)
	}))
	defer srv.Close()

	r := NewCrossrefResolver(srv.URL)
	doi, err := r.Resolve(context.Background(),
		"Zinman B et al. Empagliflozin, cardiovascular outcomes, and mortality in type 2 diabetes. NEJM 2015.")
	require.NoError(t, err)
	assert.Equal(t, "10.1056/nejmoa1504720", doi)
}

func TestResolve_RejectsPoorTitleMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, worksHit)
	}))
	defer srv.Close()

	r := NewCrossrefResolver(srv.URL)
	_, err := r.Resolve(context.Background(), "Smith J. An unrelated paper about something else entirely. 2001.")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"message": {"items": []}}`)
	}))
	defer srv.Close()

	r := NewCrossrefResolver(srv.URL)
	_, err := r.Resolve(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetch_ReturnsMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works/10.1056%2Fnejmoa1504720", r.URL.EscapedPath())
		fmt.Fprint(w, `{
			"message": {
				"DOI": "10.1056/nejmoa1504720",
				"title": ["Empagliflozin, Cardiovascular Outcomes, and Mortality in Type 2 Diabetes"],
				"container-title": ["New England Journal of Medicine"],
				"author": [
					{"given": "Bernard", "family": "Zinman"},
					{"given": "Christoph", "family": "Wanner"}
				],
				"issued": {"date-parts": [[2015, 11, 26]]}
			}
		}`)
	}))
	defer srv.Close()

	r := NewCrossrefResolver(srv.URL)
	md, err := r.Fetch(context.Background(), "10.1056/nejmoa1504720")
	require.NoError(t, err)

	assert.Equal(t, "10.1056/nejmoa1504720", md.DOI)
	assert.Equal(t, "Empagliflozin, Cardiovascular Outcomes, and Mortality in Type 2 Diabetes", md.Title)
	assert.Equal(t, "New England Journal of Medicine", md.Journal)
	assert.Equal(t, 2015, md.Year)
	assert.Equal(t, []string{"Bernard Zinman", "Christoph Wanner"}, md.Authors)
}

func TestGetJSON_StatusMapping(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))

		r := NewCrossrefResolver(srv.URL)
		_, err := r.Resolve(context.Background(), "anything")
		require.Error(t, err)

		var httpErr *HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, status, httpErr.Status)
		srv.Close()
	}
}

func TestTransient(t *testing.T) {
	assert.True(t, Transient(&HTTPError{Status: http.StatusTooManyRequests}))
	assert.True(t, Transient(&HTTPError{Status: http.StatusBadGateway}))
	assert.True(t, Transient(context.DeadlineExceeded))

	assert.False(t, Transient(&HTTPError{Status: http.StatusForbidden}))
	assert.False(t, Transient(ErrNotFound))
	assert.False(t, Transient(fmt.Errorf("schema validation failed")))
}

func TestTitleMatches(t *testing.T) {
	cite := "Zinman B. Empagliflozin, cardiovascular outcomes, and mortality in type 2 diabetes. 2015."

	assert.True(t, titleMatches(cite, []string{"Empagliflozin, Cardiovascular Outcomes, and Mortality in Type 2 Diabetes"}))
	assert.False(t, titleMatches(cite, []string{"Effects of bariatric surgery on long-term renal function"}))
	assert.False(t, titleMatches(cite, nil))
	// Titles with no significant tokens cannot be disproven.
	assert.True(t, titleMatches(cite, []string{"On it"}))
}

func TestCitationURL(t *testing.T) {
	assert.Equal(t, "https://example.org/articles/42",
		CitationURL("Smith J. Some report. Available at: https://example.org/articles/42 (accessed 2020)."))
	assert.Equal(t, "", CitationURL("Smith J. Some report without a link. 2020."))
}

func TestFetchLandingMeta_ReadsCitationTags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head>
			<meta name="citation_doi" content="10.1000/landing.1">
			<meta name="citation_title" content="A Landing Page Study">
			<meta name="citation_journal_title" content="Journal of Examples">
			<meta name="citation_publication_date" content="2018/04/02">
			<meta name="citation_author" content="Ada Lovelace">
			<meta name="citation_author" content="Alan Turing">
		</head><body></body></html>`)
	}))
	defer srv.Close()

	md, err := FetchLandingMeta(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "10.1000/landing.1", md.DOI)
	assert.Equal(t, "A Landing Page Study", md.Title)
	assert.Equal(t, "Journal of Examples", md.Journal)
	assert.Equal(t, 2018, md.Year)
	assert.Equal(t, []string{"Ada Lovelace", "Alan Turing"}, md.Authors)
}

func TestFetchLandingMeta_NoTags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>Plain page</title></head><body>nothing here</body></html>`)
	}))
	defer srv.Close()

	_, err := FetchLandingMeta(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrNotFound)
}
