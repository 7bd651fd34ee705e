package authz_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/taskdesk/authz"
	"github.com/jmcleod/taskdesk/credstore"
	"github.com/jmcleod/taskdesk/storage/memory"
)

type seen struct {
	authorization string
	requestID     string
}

// setupServer returns a server whose /login and /user always answer 401 and
// whose /projects answers 200, recording the headers of the last request.
func setupServer(t *testing.T, last *seen) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			last.authorization = r.Header.Get("Authorization")
			last.requestID = r.Header.Get("X-Request-ID")
			next.ServeHTTP(w, r)
		})
	})
	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Invalid username or password"}`))
	})
	r.Get("/user", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"msg":"Token has expired"}`))
	})
	r.Get("/projects", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newStore() (*credstore.Store, *memory.Store, *memory.Store) {
	durable, ephemeral := memory.NewStore(), memory.NewStore()
	return credstore.New(durable, ephemeral), durable, ephemeral
}

func do(t *testing.T, client *http.Client, ctx context.Context, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAttachesBearerToken(t *testing.T) {
	var last seen
	srv := setupServer(t, &last)
	store, _, _ := newStore()
	require.NoError(t, store.SaveToken("T1", true))
	client := &http.Client{Transport: authz.New(store)}

	resp := do(t, client, t.Context(), http.MethodGet, srv.URL+"/projects")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer T1", last.authorization)
	assert.NotEmpty(t, last.requestID)
}

func TestEphemeralTokenAttached(t *testing.T) {
	var last seen
	srv := setupServer(t, &last)
	store, _, _ := newStore()
	require.NoError(t, store.SaveToken("E1", false))
	client := &http.Client{Transport: authz.New(store)}

	do(t, client, t.Context(), http.MethodGet, srv.URL+"/projects")
	assert.Equal(t, "Bearer E1", last.authorization)
}

func TestNoTokenSendsAnonymous(t *testing.T) {
	var last seen
	srv := setupServer(t, &last)
	store, _, _ := newStore()
	client := &http.Client{Transport: authz.New(store)}

	resp := do(t, client, t.Context(), http.MethodGet, srv.URL+"/projects")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, last.authorization)
}

func TestCallerRequestIsNotMutated(t *testing.T) {
	var last seen
	srv := setupServer(t, &last)
	store, _, _ := newStore()
	require.NoError(t, store.SaveToken("T1", true))
	client := &http.Client{Transport: authz.New(store)}

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/projects", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "caller-chosen")
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Equal(t, "caller-chosen", last.requestID)
}

func TestUnauthorizedOnProtectedRequestInvalidates(t *testing.T) {
	var last seen
	srv := setupServer(t, &last)
	store, durable, _ := newStore()
	require.NoError(t, store.SaveToken("T1", true))

	var invalidated []string
	transport := authz.New(store, authz.WithInvalidationHook(func(req *http.Request) {
		invalidated = append(invalidated, "first:"+req.URL.Path)
	}))
	transport.OnInvalidate(func(req *http.Request) {
		invalidated = append(invalidated, "second:"+req.URL.Path)
	})
	client := &http.Client{Transport: transport}

	resp := do(t, client, t.Context(), http.MethodGet, srv.URL+"/user")

	// The response still reaches the caller.
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, []string{"first:/user", "second:/user"}, invalidated)

	_, err := store.Read()
	assert.ErrorIs(t, err, credstore.ErrNoCredential)
	keys, err := durable.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestUnauthorizedOnTaggedRequestDoesNotInvalidate(t *testing.T) {
	var last seen
	srv := setupServer(t, &last)
	store, _, _ := newStore()
	require.NoError(t, store.SaveToken("unrelated", true))

	hookCalls := 0
	client := &http.Client{Transport: authz.New(store, authz.WithInvalidationHook(func(*http.Request) {
		hookCalls++
	}))}

	ctx := authz.SkipGlobalAuthHandling(t.Context())
	resp := do(t, client, ctx, http.MethodPost, srv.URL+"/login")

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, hookCalls)
	c, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, "unrelated", c.Token)
}

func TestLoginPathWithoutTagIsProtected(t *testing.T) {
	// Intent comes from the tag, not from the URL text.
	var last seen
	srv := setupServer(t, &last)
	store, _, _ := newStore()
	require.NoError(t, store.SaveToken("T1", true))
	client := &http.Client{Transport: authz.New(store)}

	do(t, client, t.Context(), http.MethodPost, srv.URL+"/login")
	_, err := store.Read()
	assert.ErrorIs(t, err, credstore.ErrNoCredential)
}

type failingStore struct{ err error }

func (f failingStore) Read() (credstore.Credential, error) { return credstore.Credential{}, f.err }
func (f failingStore) Clear() error                        { return f.err }

func TestStoreReadFailureSendsAnonymous(t *testing.T) {
	var last seen
	srv := setupServer(t, &last)
	client := &http.Client{Transport: authz.New(failingStore{err: errors.New("disk on fire")})}

	resp := do(t, client, t.Context(), http.MethodGet, srv.URL+"/projects")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, last.authorization)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestTransportErrorPropagates(t *testing.T) {
	store, _, _ := newStore()
	require.NoError(t, store.SaveToken("T1", true))
	boom := errors.New("connection refused")
	reg := prometheus.NewRegistry()
	transport := authz.New(store,
		authz.WithBase(roundTripFunc(func(*http.Request) (*http.Response, error) { return nil, boom })),
		authz.WithMetrics(authz.NewCollector(reg)),
	)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://example.invalid/projects", nil)
	require.NoError(t, err)
	_, err = transport.RoundTrip(req)
	assert.ErrorIs(t, err, boom)

	// Credentials survive a network failure.
	c, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, "T1", c.Token)
}

func TestMetrics(t *testing.T) {
	var last seen
	srv := setupServer(t, &last)
	store, _, _ := newStore()
	reg := prometheus.NewRegistry()
	client := &http.Client{Transport: authz.New(store, authz.WithMetrics(authz.NewCollector(reg)))}

	do(t, client, t.Context(), http.MethodGet, srv.URL+"/projects")
	require.NoError(t, store.SaveToken("T1", false))
	do(t, client, t.Context(), http.MethodGet, srv.URL+"/projects")
	do(t, client, t.Context(), http.MethodGet, srv.URL+"/user")

	expected := `
# HELP taskdesk_client_invalidations_total Sessions invalidated by a 401 on a protected request.
# TYPE taskdesk_client_invalidations_total counter
taskdesk_client_invalidations_total 1
# HELP taskdesk_client_requests_total Outgoing API requests by whether a bearer credential was attached.
# TYPE taskdesk_client_requests_total counter
taskdesk_client_requests_total{outcome="anonymous"} 1
taskdesk_client_requests_total{outcome="authenticated"} 2
# HELP taskdesk_client_responses_total API responses by status class, or error when no response arrived.
# TYPE taskdesk_client_responses_total counter
taskdesk_client_responses_total{class="2xx"} 2
taskdesk_client_responses_total{class="4xx"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestRedirectToForeignOriginCarriesNoCredential(t *testing.T) {
	var foreignAuth string
	foreignHits := 0
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		foreignHits++
		foreignAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(foreign.Close)

	var apiAuth string
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiAuth = r.Header.Get("Authorization")
		http.Redirect(w, r, foreign.URL+"/elsewhere", http.StatusFound)
	}))
	t.Cleanup(apiSrv.Close)

	store, _, _ := newStore()
	require.NoError(t, store.SaveToken("T1", true))
	hookCalls := 0
	client := &http.Client{Transport: authz.New(store,
		authz.WithOrigin(mustParseURL(t, apiSrv.URL+"/api")),
		authz.WithInvalidationHook(func(*http.Request) { hookCalls++ }),
	)}

	resp := do(t, client, t.Context(), http.MethodGet, apiSrv.URL+"/api/projects")

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Bearer T1", apiAuth)
	assert.Equal(t, 1, foreignHits)
	assert.Empty(t, foreignAuth)
	assert.Zero(t, hookCalls)
	c, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, "T1", c.Token)
}

func TestRedirectWithinOriginKeepsCredential(t *testing.T) {
	var last seen
	srv := setupServer(t, &last)
	redirector := chi.NewRouter()
	redirector.Get("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/projects", http.StatusMovedPermanently)
	})
	redirector.Mount("/", srv.Config.Handler)
	same := httptest.NewServer(redirector)
	t.Cleanup(same.Close)

	store, _, _ := newStore()
	require.NoError(t, store.SaveToken("T1", true))
	client := &http.Client{Transport: authz.New(store, authz.WithOrigin(mustParseURL(t, same.URL)))}

	resp := do(t, client, t.Context(), http.MethodGet, same.URL+"/old")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer T1", last.authorization)
}

func TestOriginMatchIgnoresCaseAndDefaultPort(t *testing.T) {
	store, _, _ := newStore()
	require.NoError(t, store.SaveToken("T1", true))

	var got []string
	transport := authz.New(store,
		authz.WithOrigin(mustParseURL(t, "https://api.example.com/api")),
		authz.WithBase(roundTripFunc(func(r *http.Request) (*http.Response, error) {
			got = append(got, r.Header.Get("Authorization"))
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
		})),
	)

	for _, raw := range []string{
		"https://API.example.com:443/api/user",
		"http://api.example.com/api/user",
		"https://api.example.com:8443/api/user",
		"https://evil.example.com/api/user",
	} {
		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, raw, nil)
		require.NoError(t, err)
		resp, err := transport.RoundTrip(req)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, []string{"Bearer T1", "", "", ""}, got)
}
