package scm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"roundtable/internal/domain"
)

// maxResponseBody is the maximum response body size read from the API.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// Circuit breaker defaults.
const (
	cbMaxFailures uint32        = 5
	cbTimeout     time.Duration = 30 * time.Second
	cbInterval    time.Duration = 60 * time.Second
)

// GithubConfig configures the GitHub gateway.
type GithubConfig struct {
	Owner             string
	Repo              string
	Token             string
	BaseURL           string  // default https://api.github.com
	RequestsPerSecond float64 // default 1
}

// Github implements domain.SourceControlGateway against the GitHub
// REST v3 API. All requests share a rate limiter and a circuit breaker
// so a failing API cannot trigger request storms.
type Github struct {
	cfg     GithubConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
}

// NewGithub creates the GitHub gateway.
func NewGithub(cfg GithubConfig, logger *slog.Logger) *Github {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "github:" + cfg.Owner + "/" + cfg.Repo,
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    cbInterval,
		Timeout:     cbTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cbMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// Not-found is a valid answer, not an API outage.
			return err == nil || domain.IsNotFound(err)
		},
	})

	return &Github{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 2),
		breaker: breaker,
		logger:  logger,
	}
}

// do performs one rate-limited, breaker-protected API request and
// returns the response body.
func (g *Github) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("github: rate limit wait: %w", err)
	}

	return g.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("github: marshal body: %w", err)
			}
			reader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("github: create request: %w", err)
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if g.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
		}

		resp, err := g.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("github: %s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if err != nil {
			return nil, fmt.Errorf("github: read response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, domain.NewDomainError("github", domain.ErrNotFound, method+" "+path)
		case resp.StatusCode >= 300:
			return nil, fmt.Errorf("github: %s %s: status %d: %s",
				method, path, resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		return respBody, nil
	})
}

func (g *Github) repoPath(format string, args ...any) string {
	return fmt.Sprintf("/repos/%s/%s", g.cfg.Owner, g.cfg.Repo) + fmt.Sprintf(format, args...)
}

// Wire shapes for the subset of the REST API the gateway touches.
type ghPull struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	Merged    bool      `json:"merged"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Head      struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	} `json:"head"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	AutoMerge *struct{} `json:"auto_merge"`
}

type ghCombinedStatus struct {
	State    string `json:"state"`
	Statuses []struct {
		Context string `json:"context"`
		State   string `json:"state"`
	} `json:"statuses"`
}

func (g *Github) ListOpenPRs(ctx context.Context) ([]domain.PRInfo, error) {
	data, err := g.do(ctx, http.MethodGet, g.repoPath("/pulls?state=open&per_page=100"), nil)
	if err != nil {
		return nil, err
	}

	var pulls []ghPull
	if err := json.Unmarshal(data, &pulls); err != nil {
		return nil, fmt.Errorf("github: decode pulls: %w", err)
	}

	out := make([]domain.PRInfo, 0, len(pulls))
	for _, p := range pulls {
		info := toPRInfo(p)
		ci, err := g.ciStatusForRef(ctx, p.Head.SHA)
		if err != nil {
			g.logger.Warn("ci status lookup failed", "pr", p.Number, "error", err)
			ci = domain.CIPending
		}
		info.CIStatus = ci
		out = append(out, info)
	}
	return out, nil
}

func (g *Github) GetPR(ctx context.Context, number int) (*domain.PRInfo, error) {
	data, err := g.do(ctx, http.MethodGet, g.repoPath("/pulls/%d", number), nil)
	if err != nil {
		return nil, err
	}

	var p ghPull
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("github: decode pull: %w", err)
	}

	info := toPRInfo(p)
	ci, err := g.ciStatusForRef(ctx, p.Head.SHA)
	if err != nil {
		return nil, err
	}
	info.CIStatus = ci
	return &info, nil
}

func toPRInfo(p ghPull) domain.PRInfo {
	status := domain.PROpen
	switch {
	case p.Merged:
		status = domain.PRMerged
	case p.State == "closed":
		status = domain.PRClosed
	}

	labels := make([]string, 0, len(p.Labels))
	for _, l := range p.Labels {
		labels = append(labels, l.Name)
	}

	return domain.PRInfo{
		Number:    p.Number,
		Title:     p.Title,
		Status:    status,
		Branch:    p.Head.Ref,
		Labels:    labels,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		URL:       p.HTMLURL,
		AutoMerge: p.AutoMerge != nil,
	}
}

func (g *Github) CIStatus(ctx context.Context, number int) (domain.CIStatus, error) {
	pr, err := g.GetPR(ctx, number)
	if err != nil {
		return "", err
	}
	return pr.CIStatus, nil
}

func (g *Github) ciStatusForRef(ctx context.Context, ref string) (domain.CIStatus, error) {
	data, err := g.do(ctx, http.MethodGet, g.repoPath("/commits/%s/status", ref), nil)
	if err != nil {
		return "", err
	}

	var combined ghCombinedStatus
	if err := json.Unmarshal(data, &combined); err != nil {
		return "", fmt.Errorf("github: decode combined status: %w", err)
	}

	switch combined.State {
	case "success":
		return domain.CISuccess, nil
	case "failure":
		return domain.CIFailure, nil
	case "error":
		return domain.CIError, nil
	default:
		return domain.CIPending, nil
	}
}

func (g *Github) AllChecksPassed(ctx context.Context, number int, requiredChecks []string) (bool, error) {
	data, err := g.do(ctx, http.MethodGet, g.repoPath("/pulls/%d", number), nil)
	if err != nil {
		return false, err
	}
	var p ghPull
	if err := json.Unmarshal(data, &p); err != nil {
		return false, fmt.Errorf("github: decode pull: %w", err)
	}

	statusData, err := g.do(ctx, http.MethodGet, g.repoPath("/commits/%s/status", p.Head.SHA), nil)
	if err != nil {
		return false, err
	}
	var combined ghCombinedStatus
	if err := json.Unmarshal(statusData, &combined); err != nil {
		return false, fmt.Errorf("github: decode combined status: %w", err)
	}

	passed := make(map[string]bool, len(combined.Statuses))
	for _, s := range combined.Statuses {
		passed[s.Context] = s.State == "success"
	}
	for _, name := range requiredChecks {
		if !passed[name] {
			return false, nil
		}
	}
	return true, nil
}

func (g *Github) MergePR(ctx context.Context, number int, method domain.MergeMethod) (bool, error) {
	if method == "" {
		method = domain.MergeSquash
	}
	_, err := g.do(ctx, http.MethodPut, g.repoPath("/pulls/%d/merge", number), map[string]string{
		"merge_method": string(method),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (g *Github) ClosePR(ctx context.Context, number int, comment string) (bool, error) {
	if comment != "" {
		if err := g.Comment(ctx, number, comment); err != nil {
			g.logger.Warn("close comment failed", "pr", number, "error", err)
		}
	}
	_, err := g.do(ctx, http.MethodPatch, g.repoPath("/pulls/%d", number), map[string]string{
		"state": "closed",
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (g *Github) AddLabel(ctx context.Context, number int, label string) error {
	_, err := g.do(ctx, http.MethodPost, g.repoPath("/issues/%d/labels", number), map[string][]string{
		"labels": {label},
	})
	return err
}

func (g *Github) RemoveLabel(ctx context.Context, number int, label string) error {
	_, err := g.do(ctx, http.MethodDelete, g.repoPath("/issues/%d/labels/%s", number, label), nil)
	return err
}

func (g *Github) Comment(ctx context.Context, number int, body string) error {
	_, err := g.do(ctx, http.MethodPost, g.repoPath("/issues/%d/comments", number), map[string]string{
		"body": body,
	})
	return err
}

func (g *Github) DeleteBranch(ctx context.Context, branch string) error {
	_, err := g.do(ctx, http.MethodDelete, g.repoPath("/git/refs/heads/%s", branch), nil)
	return err
}
