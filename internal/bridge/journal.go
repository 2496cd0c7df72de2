package bridge

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type JobState string

const (
	JobReceived   JobState = "received"
	JobValidating JobState = "validating"
	JobApplying   JobState = "applying"
	JobCompleted  JobState = "completed"
	JobInvalid    JobState = "invalid"
	JobRejected   JobState = "rejected"
	JobFailed     JobState = "failed"
)

// PushJob is the journal record of one push attempt. Terminal states are
// completed, invalid, rejected, and failed; exactly one postback (or none,
// when rejected before the 202) corresponds to each terminal record.
type PushJob struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"projectId"`
	State         JobState  `json:"state"`
	Outcome       string    `json:"outcome,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	CallerVersion int       `json:"callerVersion"`
	NewVersion    int       `json:"newVersion,omitempty"`
	FileCount     int       `json:"fileCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// PushJournal records push job lifecycle transitions. Journal failures must
// never fail a push; callers log and continue.
type PushJournal interface {
	Record(job PushJob) error
	ListRecent(projectID string, limit int) ([]PushJob, error)
	Close() error
}

const defaultJournalRetention = 1000

type MemoryJournal struct {
	mu       sync.Mutex
	jobs     map[string]PushJob
	order    []string
	capacity int
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		jobs:     map[string]PushJob{},
		capacity: defaultJournalRetention,
	}
}

func (j *MemoryJournal) Record(job PushJob) error {
	if strings.TrimSpace(job.ID) == "" {
		return ErrInvalidInput
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, exists := j.jobs[job.ID]; !exists {
		j.order = append(j.order, job.ID)
		if len(j.order) > j.capacity {
			evicted := j.order[0]
			j.order = j.order[1:]
			delete(j.jobs, evicted)
		}
	}
	j.jobs[job.ID] = job
	return nil
}

func (j *MemoryJournal) ListRecent(projectID string, limit int) ([]PushJob, error) {
	if limit <= 0 {
		limit = 100
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	jobs := make([]PushJob, 0, len(j.jobs))
	for _, job := range j.jobs {
		if projectID != "" && job.ProjectID != projectID {
			continue
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, k int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
		}
		return jobs[i].ID > jobs[k].ID
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (j *MemoryJournal) Close() error {
	return nil
}
