package networking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachefang/cachefang/internal/utils"
)

func newClient(t *testing.T, cfg ClientConfig) *Client {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "test-agent"
	}
	client, err := NewClient(cfg, utils.NoOpLogger{})
	require.NoError(t, err)
	return client
}

func TestClassifyCacheStatus(t *testing.T) {
	tests := []struct {
		name    string
		headers http.Header
		want    CacheStatus
	}{
		{"x-cache hit", http.Header{"X-Cache": {"HIT"}}, CacheHit},
		{"x-cache hit from cloudfront", http.Header{"X-Cache": {"Hit from cloudfront"}}, CacheHit},
		{"cf miss", http.Header{"Cf-Cache-Status": {"MISS"}}, CacheMiss},
		{"expired counts as miss", http.Header{"X-Cache-Status": {"EXPIRED"}}, CacheMiss},
		{"bypass counts as miss", http.Header{"Fastly-Cache-Status": {"BYPASS"}}, CacheMiss},
		{"positive age is a hit", http.Header{"Age": {"120"}}, CacheHit},
		{"zero age is unknown", http.Header{"Age": {"0"}}, CacheUnknown},
		{"no signals", http.Header{"Content-Type": {"text/html"}}, CacheUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, evidence := ClassifyCacheStatus(tc.headers)
			assert.Equal(t, tc.want, got)
			if tc.want != CacheUnknown {
				assert.NotEmpty(t, evidence)
			}
		})
	}
}

func TestProbeDoesNotFollowRedirectsByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/final" {
			fmt.Fprint(w, "landed")
			return
		}
		http.Redirect(w, r, "/final", http.StatusFound)
	}))
	defer srv.Close()

	client := newClient(t, ClientConfig{})

	res, err := client.Probe(context.Background(), ProbeRequest{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/final", res.Headers.Get("Location"))

	followed, err := client.Probe(context.Background(), ProbeRequest{URL: srv.URL, FollowRedirects: true})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, followed.StatusCode)
	assert.Equal(t, "landed", string(followed.Body))
}

func TestProbeSendsConfiguredUserAgentAndHeaders(t *testing.T) {
	var gotUA, gotXFH string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotXFH = r.Header.Get("X-Forwarded-Host")
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	client := newClient(t, ClientConfig{UserAgent: "cachefang-test"})
	_, err := client.Probe(context.Background(), ProbeRequest{
		URL:     srv.URL,
		Headers: http.Header{"X-Forwarded-Host": {"evil.example"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "cachefang-test", gotUA)
	assert.Equal(t, "evil.example", gotXFH)
}

func TestProbeClassifiesConnectionError(t *testing.T) {
	client := newClient(t, ClientConfig{})
	_, err := client.Probe(context.Background(), ProbeRequest{URL: "http://127.0.0.1:1/"})
	require.Error(t, err)

	var probeErr *ProbeError
	require.True(t, errors.As(err, &probeErr))
	assert.Equal(t, ErrKindConnection, probeErr.Kind)
}

func TestProbeClassifiesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	client := newClient(t, ClientConfig{Timeout: 50 * time.Millisecond})
	_, err := client.Probe(context.Background(), ProbeRequest{URL: srv.URL})
	require.Error(t, err)

	var probeErr *ProbeError
	require.True(t, errors.As(err, &probeErr))
	assert.Equal(t, ErrKindTimeout, probeErr.Kind)
}

func TestProbeCapsBodySize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 2*maxBodyBytes/16; i++ {
			fmt.Fprint(w, "0123456789abcdef")
		}
	}))
	defer srv.Close()

	client := newClient(t, ClientConfig{})
	res, err := client.Probe(context.Background(), ProbeRequest{URL: srv.URL})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.Body), maxBodyBytes)
}

func TestProbeMeasuresElapsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	client := newClient(t, ClientConfig{})
	res, err := client.Probe(context.Background(), ProbeRequest{URL: srv.URL})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Elapsed, 20*time.Millisecond)
}

func TestNewClientRejectsBadProxy(t *testing.T) {
	_, err := NewClient(ClientConfig{
		Timeout:   time.Second,
		UserAgent: "x",
		Proxy:     "://bad",
	}, utils.NoOpLogger{})
	assert.Error(t, err)
}

func TestBodySnippetTruncates(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	res := &ProbeResult{Body: long}
	assert.Len(t, res.BodySnippet(), 200)

	short := &ProbeResult{Body: []byte("tiny")}
	assert.Equal(t, "tiny", short.BodySnippet())
}
