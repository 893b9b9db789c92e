// Package scm contains the source-control gateway implementations: a
// GitHub REST adapter for production and an in-memory fake for tests
// and offline runs.
package scm

import (
	"context"
	"slices"
	"sort"
	"sync"

	"roundtable/internal/domain"
)

// Fake is an in-memory SourceControlGateway. It records mutating calls
// so tests can assert on external effects.
type Fake struct {
	mu     sync.Mutex
	prs    map[int]domain.PRInfo
	checks map[int]map[string]bool // PR number → check name → passed

	MergeCalls  []int
	CloseCalls  []int
	Comments    map[int][]string
	DeletedRefs []string
}

// NewFake creates an empty fake gateway.
func NewFake() *Fake {
	return &Fake{
		prs:      make(map[int]domain.PRInfo),
		checks:   make(map[int]map[string]bool),
		Comments: make(map[int][]string),
	}
}

// AddPR seeds a pull request.
func (f *Fake) AddPR(pr domain.PRInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prs[pr.Number] = pr
}

// SetCheck seeds the outcome of a named check for a PR.
func (f *Fake) SetCheck(number int, name string, passed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checks[number] == nil {
		f.checks[number] = make(map[string]bool)
	}
	f.checks[number][name] = passed
}

func (f *Fake) ListOpenPRs(_ context.Context) ([]domain.PRInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.PRInfo
	for _, pr := range f.prs {
		if pr.Status == domain.PROpen {
			out = append(out, pr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (f *Fake) GetPR(_ context.Context, number int) (*domain.PRInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pr, ok := f.prs[number]
	if !ok {
		return nil, domain.NewDomainError("Fake.GetPR", domain.ErrNotFound, "")
	}
	return &pr, nil
}

func (f *Fake) CIStatus(ctx context.Context, number int) (domain.CIStatus, error) {
	pr, err := f.GetPR(ctx, number)
	if err != nil {
		return "", err
	}
	return pr.CIStatus, nil
}

func (f *Fake) AllChecksPassed(_ context.Context, number int, requiredChecks []string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, name := range requiredChecks {
		if !f.checks[number][name] {
			return false, nil
		}
	}
	return true, nil
}

func (f *Fake) MergePR(_ context.Context, number int, _ domain.MergeMethod) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pr, ok := f.prs[number]
	if !ok {
		return false, domain.NewDomainError("Fake.MergePR", domain.ErrNotFound, "")
	}
	pr.Status = domain.PRMerged
	f.prs[number] = pr
	f.MergeCalls = append(f.MergeCalls, number)
	return true, nil
}

func (f *Fake) ClosePR(_ context.Context, number int, comment string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pr, ok := f.prs[number]
	if !ok {
		return false, domain.NewDomainError("Fake.ClosePR", domain.ErrNotFound, "")
	}
	pr.Status = domain.PRClosed
	f.prs[number] = pr
	f.CloseCalls = append(f.CloseCalls, number)
	if comment != "" {
		f.Comments[number] = append(f.Comments[number], comment)
	}
	return true, nil
}

func (f *Fake) AddLabel(_ context.Context, number int, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	pr, ok := f.prs[number]
	if !ok {
		return domain.NewDomainError("Fake.AddLabel", domain.ErrNotFound, "")
	}
	if !slices.Contains(pr.Labels, label) {
		pr.Labels = append(pr.Labels, label)
		f.prs[number] = pr
	}
	return nil
}

func (f *Fake) RemoveLabel(_ context.Context, number int, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	pr, ok := f.prs[number]
	if !ok {
		return domain.NewDomainError("Fake.RemoveLabel", domain.ErrNotFound, "")
	}
	pr.Labels = slices.DeleteFunc(pr.Labels, func(l string) bool { return l == label })
	f.prs[number] = pr
	return nil
}

func (f *Fake) Comment(_ context.Context, number int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.prs[number]; !ok {
		return domain.NewDomainError("Fake.Comment", domain.ErrNotFound, "")
	}
	f.Comments[number] = append(f.Comments[number], body)
	return nil
}

func (f *Fake) DeleteBranch(_ context.Context, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeletedRefs = append(f.DeletedRefs, branch)
	return nil
}
