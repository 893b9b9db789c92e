package domain

import "time"

// PRStatus is the lifecycle state of a pull request.
type PRStatus string

const (
	PROpen   PRStatus = "open"
	PRClosed PRStatus = "closed"
	PRMerged PRStatus = "merged"
)

// CIStatus is the aggregate CI state of a pull request's head commit.
type CIStatus string

const (
	CIPending   CIStatus = "pending"
	CISuccess   CIStatus = "success"
	CIFailure   CIStatus = "failure"
	CIError     CIStatus = "error"
	CICancelled CIStatus = "cancelled"
)

// PRAction is the resolved action for a pull request.
type PRAction string

const (
	ActionMerge  PRAction = "merge"
	ActionClose  PRAction = "close"
	ActionWait   PRAction = "wait"
	ActionReview PRAction = "review"
)

// MergeMethod selects how a merge is performed by the gateway.
type MergeMethod string

const (
	MergeCommit MergeMethod = "merge"
	MergeSquash MergeMethod = "squash"
	MergeRebase MergeMethod = "rebase"
)

// PRInfo is a snapshot of a pull request as reported by the
// source-control gateway. The coordinator never constructs one.
type PRInfo struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Status    PRStatus  `json:"status"`
	CIStatus  CIStatus  `json:"ci_status"`
	Branch    string    `json:"branch"`
	AgentID   string    `json:"agent_id,omitempty"`
	Labels    []string  `json:"labels,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	URL       string    `json:"url"`
	AutoMerge bool      `json:"auto_merge"`
}

// PRDecision is the engine's resolved action for a pull request at a
// point in time. One decision is retained per PR number; a newer
// decision overwrites the prior one.
type PRDecision struct {
	PRNumber       int       `json:"pr_number"`
	Action         PRAction  `json:"action"`
	Reason         string    `json:"reason"`
	Timestamp      time.Time `json:"timestamp"`
	WaitConditions []string  `json:"wait_conditions,omitempty"`
}
