package parser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLooksDynamic(t *testing.T) {
	cases := []struct {
		name string
		body string
		want bool
	}{
		{"plain html", "<html><body><p>hello world</p></body></html>", false},
		{"script tag", "<html><head><script src='/app.js'></script></head></html>", true},
		{"react root", `<html><body><div data-reactroot=""></div></body></html>`, true},
		{"initial state", `<html><body>window.__INITIAL_STATE__={}</body></html>`, true},
		{"next root", `<html><body><div id="__next"></div></body></html>`, true},
		{"marker beyond probe window", "<html><body>" + strings.Repeat("x", 4096) + "<script></script></body></html>", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, LooksDynamic([]byte(tc.body)))
		})
	}
}

func TestExtractTextReadableArticle(t *testing.T) {
	html := `<html><head><title>Story</title></head><body>
		<article>
			<h1>A Long Read</h1>
			<p>` + strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20) + `</p>
		</article>
	</body></html>`

	text, err := ExtractText("https://example.com/story", []byte(html))
	require.NoError(t, err)
	require.Contains(t, text, "quick brown fox")
	require.NotContains(t, text, "<p>")
}

func TestExtractTextFallsBackToDOMWalk(t *testing.T) {
	html := `<html><body>
		<script>var hidden = true;</script>
		<style>p { color: red }</style>
		<nav>Home About</nav>
	</body></html>`

	text, err := ExtractText("https://example.com", []byte(html))
	require.NoError(t, err)
	require.Contains(t, text, "Home About")
	require.NotContains(t, text, "hidden")
	require.NotContains(t, text, "color")
}

func TestStaticFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>static page</p></body></html>"))
	}))
	t.Cleanup(srv.Close)

	f := NewStatic(StaticConfig{UserAgent: "pagescope-test/1.0", Timeout: 5 * time.Second})

	page, err := f.Fetch(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, string(page.Body), "static page")

	page, err = f.Fetch(context.Background(), srv.URL+"/missing")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, page.StatusCode)
}

type stubFetcher struct {
	page Page
	err  error
}

func (s stubFetcher) Fetch(context.Context, string) (Page, error) { return s.page, s.err }

type stubRenderer struct {
	page   Page
	err    error
	called bool
}

func (s *stubRenderer) Render(context.Context, string) (Page, error) {
	s.called = true
	return s.page, s.err
}
func (s *stubRenderer) Close() {}

func TestParseStaticPageSkipsRenderer(t *testing.T) {
	renderer := &stubRenderer{}
	p := New(stubFetcher{page: Page{
		URL:        "https://example.com",
		StatusCode: http.StatusOK,
		Body:       []byte("<html><body><p>simple content here</p></body></html>"),
	}}, renderer, zap.NewNop())

	result, err := p.Parse(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.False(t, renderer.called)
	require.False(t, result.UsedHeadless)
	require.Contains(t, result.Content, "simple content")
}

func TestParseDynamicPageUsesRenderer(t *testing.T) {
	static := []byte(`<html><body><div id="__next"></div><script src="/app.js"></script></body></html>`)
	rendered := []byte("<html><body><main><p>hydrated application text</p></main></body></html>")

	renderer := &stubRenderer{page: Page{URL: "https://example.com", StatusCode: http.StatusOK, Body: rendered}}
	p := New(stubFetcher{page: Page{
		URL:        "https://example.com",
		StatusCode: http.StatusOK,
		Body:       static,
	}}, renderer, zap.NewNop())

	result, err := p.Parse(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.True(t, renderer.called)
	require.True(t, result.UsedHeadless)
	require.Contains(t, result.Content, "hydrated application text")
	require.Equal(t, rendered, result.RawHTML)
}

func TestParseRendererFailureKeepsStaticDocument(t *testing.T) {
	static := []byte(`<html><body><script></script><p>server rendered copy</p></body></html>`)

	renderer := &stubRenderer{err: errors.New("browser crashed")}
	p := New(stubFetcher{page: Page{
		URL:        "https://example.com",
		StatusCode: http.StatusOK,
		Body:       static,
	}}, renderer, zap.NewNop())

	result, err := p.Parse(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.False(t, result.UsedHeadless)
	require.Contains(t, result.Content, "server rendered copy")
}

func TestParseNon200Fails(t *testing.T) {
	p := New(stubFetcher{page: Page{StatusCode: http.StatusBadGateway}}, &stubRenderer{}, zap.NewNop())

	_, err := p.Parse(context.Background(), "https://example.com")
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestParseFetchError(t *testing.T) {
	p := New(stubFetcher{err: errors.New("connection refused")}, &stubRenderer{}, zap.NewNop())

	_, err := p.Parse(context.Background(), "https://example.com")
	require.Error(t, err)
}
