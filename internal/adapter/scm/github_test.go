package scm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundtable/internal/domain"
)

func newTestGateway(t *testing.T, handler http.Handler) *Github {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewGithub(GithubConfig{
		Owner:             "acme",
		Repo:              "widgets",
		Token:             "test-token",
		BaseURL:           server.URL,
		RequestsPerSecond: 1000,
	}, slog.Default())
}

// handleFunc registers a "METHOD /path" pattern on mux. Go 1.21's ServeMux
// does not support method-qualified patterns, so the method check is done here.
func handleFunc(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	method, path, _ := strings.Cut(pattern, " ")
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	})
}

func pullJSON(number int, state, sha string, autoMerge bool) map[string]any {
	pull := map[string]any{
		"number":   number,
		"title":    fmt.Sprintf("change %d", number),
		"state":    state,
		"html_url": fmt.Sprintf("https://example.com/pulls/%d", number),
		"head":     map[string]any{"ref": fmt.Sprintf("agent/change-%d", number), "sha": sha},
		"labels":   []map[string]any{{"name": "automated"}},
	}
	if autoMerge {
		pull["auto_merge"] = map[string]any{}
	}
	return pull
}

func TestGetPR(t *testing.T) {
	mux := http.NewServeMux()
	handleFunc(mux, "GET /repos/acme/widgets/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(pullJSON(42, "open", "abc123", true))
	})
	handleFunc(mux, "GET /repos/acme/widgets/commits/abc123/status", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"state": "success"})
	})

	gw := newTestGateway(t, mux)
	pr, err := gw.GetPR(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, 42, pr.Number)
	assert.Equal(t, domain.PROpen, pr.Status)
	assert.Equal(t, domain.CISuccess, pr.CIStatus)
	assert.Equal(t, "agent/change-42", pr.Branch)
	assert.Equal(t, []string{"automated"}, pr.Labels)
	assert.True(t, pr.AutoMerge)
}

func TestGetPRNotFound(t *testing.T) {
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := gw.GetPR(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListOpenPRs(t *testing.T) {
	mux := http.NewServeMux()
	handleFunc(mux, "GET /repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "open", r.URL.Query().Get("state"))
		json.NewEncoder(w).Encode([]map[string]any{
			pullJSON(1, "open", "sha1", false),
			pullJSON(2, "open", "sha2", true),
		})
	})
	handleFunc(mux, "GET /repos/acme/widgets/commits/sha1/status", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"state": "pending"})
	})
	handleFunc(mux, "GET /repos/acme/widgets/commits/sha2/status", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"state": "failure"})
	})

	gw := newTestGateway(t, mux)
	prs, err := gw.ListOpenPRs(context.Background())
	require.NoError(t, err)

	require.Len(t, prs, 2)
	assert.Equal(t, domain.CIPending, prs[0].CIStatus)
	assert.Equal(t, domain.CIFailure, prs[1].CIStatus)
}

func TestMergePR(t *testing.T) {
	var gotMethod string
	mux := http.NewServeMux()
	handleFunc(mux, "PUT /repos/acme/widgets/pulls/7/merge", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotMethod = body["merge_method"]
		json.NewEncoder(w).Encode(map[string]any{"merged": true})
	})

	gw := newTestGateway(t, mux)
	ok, err := gw.MergePR(context.Background(), 7, domain.MergeSquash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "squash", gotMethod)
}

func TestClosePRCommentsFirst(t *testing.T) {
	var comments []string
	var closed bool
	mux := http.NewServeMux()
	handleFunc(mux, "POST /repos/acme/widgets/issues/3/comments", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		comments = append(comments, body["body"])
		w.WriteHeader(http.StatusCreated)
	})
	handleFunc(mux, "PATCH /repos/acme/widgets/pulls/3", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		closed = body["state"] == "closed"
		json.NewEncoder(w).Encode(map[string]any{"state": "closed"})
	})

	gw := newTestGateway(t, mux)
	ok, err := gw.ClosePR(context.Background(), 3, "superseded by #4")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, closed)
	assert.Equal(t, []string{"superseded by #4"}, comments)
}

func TestAllChecksPassed(t *testing.T) {
	mux := http.NewServeMux()
	handleFunc(mux, "GET /repos/acme/widgets/pulls/5", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(pullJSON(5, "open", "sha5", false))
	})
	handleFunc(mux, "GET /repos/acme/widgets/commits/sha5/status", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"state": "success",
			"statuses": []map[string]string{
				{"context": "build", "state": "success"},
				{"context": "test", "state": "failure"},
			},
		})
	})

	gw := newTestGateway(t, mux)

	ok, err := gw.AllChecksPassed(context.Background(), 5, []string{"build"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gw.AllChecksPassed(context.Background(), 5, []string{"build", "test"})
	require.NoError(t, err)
	assert.False(t, ok)
}
