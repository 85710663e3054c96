package arxiv_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/papertune/internal/arxiv"
	"github.com/signalnine/papertune/internal/tool"
)

const feed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/">
  <title>ArXiv Query</title>
  <opensearch:totalResults>2</opensearch:totalResults>
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <published>2017-06-12T17:57:34Z</published>
    <title>Attention Is All
      You Need</title>
    <summary>  The dominant sequence transduction models are based on complex
      recurrent or convolutional neural networks.</summary>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2010.11929v2</id>
    <published>2020-10-22T17:55:59Z</published>
    <title>An Image is Worth 16x16 Words</title>
    <summary>Vision transformers.</summary>
  </entry>
</feed>`

const emptyFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"><title>ArXiv Query</title></feed>`

const errorFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/api/errors#incorrect_id_format_for_1234</id>
    <title>Error</title>
    <summary>incorrect id format for 1234</summary>
  </entry>
</feed>`

func serve(t *testing.T, h http.HandlerFunc) *arxiv.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return arxiv.NewClient(arxiv.Options{BaseURL: srv.URL + "/api/query", Attempts: 3})
}

func TestSearchParsesFeed(t *testing.T) {
	var query string
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		io.WriteString(w, feed)
	})
	papers, err := c.Search(context.Background(), "transformers", 2)
	require.NoError(t, err)
	require.Len(t, papers, 2)

	assert.Equal(t, "1706.03762v7", papers[0].ID)
	assert.Equal(t, "Attention Is All You Need", papers[0].Title)
	assert.Equal(t, "https://arxiv.org/abs/1706.03762v7", papers[0].URL)
	assert.True(t, strings.HasPrefix(papers[0].Summary, "The dominant sequence"))
	assert.Equal(t, []string{"Ashish Vaswani", "Noam Shazeer"}, papers[0].Authors)
	assert.Equal(t, 2017, papers[0].Published.Year())

	assert.Contains(t, query, "search_query=all%3Atransformers")
	assert.Contains(t, query, "max_results=2")
}

func TestSearchEmpty(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, emptyFeed)
	})
	papers, err := c.Search(context.Background(), "xyzabc123nonexistenttopic", 5)
	require.NoError(t, err)
	assert.Empty(t, papers)
}

func TestSearchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, feed)
	})
	papers, err := c.Search(context.Background(), "transformers", 5)
	require.NoError(t, err)
	assert.Len(t, papers, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearchClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad query", http.StatusBadRequest)
	})
	_, err := c.Search(context.Background(), "x", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearchAPIErrorEntry(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, errorFeed)
	})
	_, err := c.Search(context.Background(), "x", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incorrect id format")
}

func TestToolResults(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.RawQuery, "broken"):
			http.Error(w, "nope", http.StatusBadRequest)
		case strings.Contains(r.URL.RawQuery, "nothing"):
			io.WriteString(w, emptyFeed)
		default:
			io.WriteString(w, feed)
		}
	})
	lt := arxiv.NewTool(c, 5, 40, nil)
	def := lt.Definition()
	assert.Equal(t, tool.CapabilityLive, def.Capability)

	found := lt.Invoke(context.Background(), tool.Call{Query: "transformers"})
	require.Equal(t, tool.StatusFound, found.Status)
	assert.Equal(t, "1706.03762v7", found.Hits[0].Identifier)
	assert.Contains(t, found.Hits[0].Snippet, "Published 2017-06-12")
	assert.Contains(t, found.Hits[0].Snippet, "...")

	empty := lt.Invoke(context.Background(), tool.Call{Query: "nothing"})
	assert.Equal(t, tool.StatusEmpty, empty.Status)
	assert.True(t, strings.HasPrefix(tool.Render(def, empty), "ARXIV_EMPTY"))

	failed := lt.Invoke(context.Background(), tool.Call{Query: "broken"})
	assert.Equal(t, tool.StatusError, failed.Status)
	assert.True(t, strings.HasPrefix(tool.Render(def, failed), "ARXIV_ERROR"))
}
