package domain

import "context"

// SourceControlGateway is the narrow interface the coordinator and the
// PR decision engine use to talk to a real PR/CI API. Implementations
// live in internal/adapter/scm.
type SourceControlGateway interface {
	// ListOpenPRs returns all currently open pull requests.
	ListOpenPRs(ctx context.Context) ([]PRInfo, error)

	// GetPR returns the pull request with the given number, or a
	// wrapped ErrNotFound when it does not exist.
	GetPR(ctx context.Context, number int) (*PRInfo, error)

	// CIStatus returns the aggregate CI status for a pull request.
	CIStatus(ctx context.Context, number int) (CIStatus, error)

	// AllChecksPassed reports whether every named required check has
	// completed successfully for the pull request.
	AllChecksPassed(ctx context.Context, number int, requiredChecks []string) (bool, error)

	// MergePR merges the pull request using the given method.
	MergePR(ctx context.Context, number int, method MergeMethod) (bool, error)

	// ClosePR closes the pull request, optionally leaving a comment.
	ClosePR(ctx context.Context, number int, comment string) (bool, error)

	// Label, comment and branch management used by surrounding tooling.
	AddLabel(ctx context.Context, number int, label string) error
	RemoveLabel(ctx context.Context, number int, label string) error
	Comment(ctx context.Context, number int, body string) error
	DeleteBranch(ctx context.Context, branch string) error
}
