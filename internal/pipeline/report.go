package pipeline

import (
	"sync"
	"time"

	"github.com/dgallion1/corpusqa/internal/index"
)

// Status is the phase a corpus build is in.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusCrawling  Status = "crawling"
	StatusIngesting Status = "ingesting"
	StatusChunking  Status = "chunking"
	StatusIndexing  Status = "indexing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusEmpty     Status = "empty"
)

// Counts are the totals gathered across a build.
type Counts struct {
	Pages      int `json:"pages"`
	LocalDocs  int `json:"local_docs"`
	WebDocs    int `json:"web_docs"`
	Failures   int `json:"failures"`
	Skipped    int `json:"skipped"`
	Duplicates int `json:"duplicates"`
	Chunks     int `json:"chunks"`
	EstTokens  int `json:"est_tokens"`
}

// Report tracks the state of a single corpus build.
type Report struct {
	mu sync.Mutex

	ID        string
	Status    Status
	Phase     string
	Counts    Counts
	Manifest  *index.Manifest
	StartedAt time.Time
	UpdatedAt time.Time

	errors []string
}

func newReport(id string) *Report {
	now := time.Now()
	return &Report{ID: id, Status: StatusQueued, Phase: "queued", StartedAt: now, UpdatedAt: now}
}

// SetStatus updates report status atomically.
func (r *Report) SetStatus(status Status, phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = status
	r.Phase = phase
	r.UpdatedAt = time.Now()
}

// AddError records an error.
func (r *Report) AddError(err string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
	r.UpdatedAt = time.Now()
}

// Update applies fn to the counters under the report lock.
func (r *Report) Update(fn func(*Counts)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.Counts)
	r.UpdatedAt = time.Now()
}

func (r *Report) setManifest(m index.Manifest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Manifest = &m
	r.UpdatedAt = time.Now()
}

// Snapshot is a read-only, JSON-safe copy of report state.
type Snapshot struct {
	ID         string          `json:"build_id"`
	Status     Status          `json:"status"`
	Phase      string          `json:"phase"`
	Counts     Counts          `json:"counts"`
	Manifest   *index.Manifest `json:"manifest,omitempty"`
	Errors     []string        `json:"errors"`
	DurationMs int64           `json:"duration_ms"`
}

// Snapshot returns a JSON-safe copy of the report state.
func (r *Report) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	errs := append([]string{}, r.errors...)
	var m *index.Manifest
	if r.Manifest != nil {
		cp := *r.Manifest
		m = &cp
	}
	return Snapshot{
		ID:         r.ID,
		Status:     r.Status,
		Phase:      r.Phase,
		Counts:     r.Counts,
		Manifest:   m,
		Errors:     errs,
		DurationMs: r.UpdatedAt.Sub(r.StartedAt).Milliseconds(),
	}
}
