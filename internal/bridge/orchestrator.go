package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultPushTimeout = 10 * time.Minute

// Orchestrator coordinates the push lifecycle: the synchronous accept/reject
// decision, the detached reconciliation run, the single postback, and the
// journal and event trail.
type Orchestrator struct {
	store       ProjectStore
	history     HistoryService
	reconciler  *Reconciler
	notifier    *PostbackNotifier
	journal     PushJournal
	events      *EventBus
	pushTimeout time.Duration
	now         func() time.Time

	wg sync.WaitGroup
}

type OrchestratorOptions struct {
	Store       ProjectStore
	History     HistoryService
	Reconciler  *Reconciler
	Notifier    *PostbackNotifier
	Journal     PushJournal
	Events      *EventBus
	PushTimeout time.Duration
	Now         func() time.Time
}

func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Store == nil || opts.History == nil || opts.Reconciler == nil {
		return nil, fmt.Errorf("store, history, and reconciler are required")
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NewPostbackNotifier(nil)
	}
	journal := opts.Journal
	if journal == nil {
		journal = NewMemoryJournal()
	}
	events := opts.Events
	if events == nil {
		events = NewEventBus()
	}
	pushTimeout := opts.PushTimeout
	if pushTimeout <= 0 {
		pushTimeout = defaultPushTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		store:       opts.Store,
		history:     opts.History,
		reconciler:  opts.Reconciler,
		notifier:    notifier,
		journal:     journal,
		events:      events,
		pushTimeout: pushTimeout,
		now:         now,
	}, nil
}

func (o *Orchestrator) Events() *EventBus {
	return o.events
}

func (o *Orchestrator) RecentJobs(projectID string, limit int) ([]PushJob, error) {
	return o.journal.ListRecent(projectID, limit)
}

// AcceptPush makes the synchronous decision for an incoming push. A version
// mismatch is rejected with a 409 ack immediately and starts no background
// work; a match is acknowledged with 202 and the reconciliation runs detached
// from the caller's request context.
func (o *Orchestrator) AcceptPush(ctx context.Context, projectID string, req PushRequest, actorID string) (PushAck, error) {
	if _, err := o.store.GetProject(ctx, projectID); err != nil {
		return PushAck{}, err
	}
	marker, err := o.history.GetVersion(ctx, projectID)
	if err != nil {
		return PushAck{}, err
	}
	if marker.Version != req.LatestVerID {
		return PushAck{
			Status:  409,
			Code:    PostbackCodeOutOfDate,
			Message: "Out of Date",
		}, nil
	}

	job := PushJob{
		ID:            uuid.NewString(),
		ProjectID:     projectID,
		State:         JobReceived,
		CallerVersion: req.LatestVerID,
		FileCount:     len(req.Files),
		CreatedAt:     o.now().UTC(),
		UpdatedAt:     o.now().UTC(),
	}
	o.recordJob(job)
	o.events.Publish(Event{Type: EventPushAccepted, ProjectID: projectID, JobID: job.ID})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.processPush(projectID, job, req, actorID)
	}()

	return PushAck{Status: 202, Code: "accepted", Message: "Accepted"}, nil
}

// Wait blocks until all in-flight pushes have reached a terminal state.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) processPush(projectID string, job PushJob, req PushRequest, actorID string) {
	ctx, cancel := context.WithTimeout(context.Background(), o.pushTimeout)
	defer cancel()

	var postbackOnce sync.Once
	deliver := func(payload Postback) {
		postbackOnce.Do(func() {
			if err := o.notifier.Notify(ctx, req.PostbackURL, payload); err != nil {
				log.Printf("postback delivery failed: project=%s job=%s code=%s err=%v",
					projectID, job.ID, payload.Code, err)
			}
		})
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			log.Printf("push processing panicked: project=%s job=%s panic=%v", projectID, job.ID, recovered)
			deliver(errorPostback())
			o.finishJob(&job, JobFailed, PostbackCodeError, fmt.Sprintf("panic: %v", recovered))
			o.events.Publish(Event{Type: EventPushFailed, ProjectID: projectID, JobID: job.ID})
		}
	}()

	job.State = JobValidating
	o.recordJob(job)

	if fileErrors := validatePushFiles(req.Files); len(fileErrors) > 0 {
		deliver(invalidFilesPostback(fileErrors))
		o.finishJob(&job, JobInvalid, PostbackCodeInvalidFiles, fmt.Sprintf("%d invalid paths", len(fileErrors)))
		o.events.Publish(Event{Type: EventPushInvalid, ProjectID: projectID, JobID: job.ID})
		return
	}

	// The gate is re-checked here: another push may have completed between the
	// 202 ack and this point.
	marker, err := o.history.GetVersion(ctx, projectID)
	if err != nil {
		log.Printf("version re-check failed: project=%s job=%s err=%v", projectID, job.ID, err)
		deliver(errorPostback())
		o.finishJob(&job, JobFailed, PostbackCodeError, err.Error())
		o.events.Publish(Event{Type: EventPushFailed, ProjectID: projectID, JobID: job.ID})
		return
	}
	if marker.Version != req.LatestVerID {
		deliver(outOfDatePostback())
		o.finishJob(&job, JobRejected, PostbackCodeOutOfDate,
			fmt.Sprintf("caller has %d, current is %d", req.LatestVerID, marker.Version))
		o.events.Publish(Event{Type: EventPushRejected, ProjectID: projectID, JobID: job.ID})
		return
	}

	job.State = JobApplying
	o.recordJob(job)

	entities, err := o.store.GetAllEntities(ctx, projectID)
	if err != nil {
		log.Printf("entity listing failed: project=%s job=%s err=%v", projectID, job.ID, err)
		deliver(errorPostback())
		o.finishJob(&job, JobFailed, PostbackCodeError, err.Error())
		o.events.Publish(Event{Type: EventPushFailed, ProjectID: projectID, JobID: job.ID})
		return
	}

	plan := o.reconciler.Plan(entities, req.Files)
	newVersion, deleteResults, err := o.reconciler.Apply(ctx, projectID, plan, EntityKindsByPath(entities), actorID)
	if err != nil {
		log.Printf("push apply failed: project=%s job=%s err=%v", projectID, job.ID, err)
		deliver(errorPostback())
		o.finishJob(&job, JobFailed, PostbackCodeError, err.Error())
		o.events.Publish(Event{Type: EventPushFailed, ProjectID: projectID, JobID: job.ID})
		return
	}
	for _, result := range deleteResults {
		if result.Err != nil {
			log.Printf("push delete skipped: project=%s job=%s path=%s err=%v",
				projectID, job.ID, result.Path, result.Err)
		}
	}

	deliver(upToDatePostback(newVersion))
	job.NewVersion = newVersion
	o.finishJob(&job, JobCompleted, PostbackCodeUpToDate, "")
	o.events.Publish(Event{Type: EventPushCompleted, ProjectID: projectID, JobID: job.ID, Version: newVersion})
}

// ExpireProject publishes the expiry event for a project so downstream
// listeners can evict any cached bridge state. Unknown projects are an error.
func (o *Orchestrator) ExpireProject(ctx context.Context, projectID string) error {
	if _, err := o.store.GetProject(ctx, projectID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	o.events.Publish(Event{Type: EventProjectExpired, ProjectID: projectID})
	return nil
}

func (o *Orchestrator) finishJob(job *PushJob, state JobState, outcome, detail string) {
	job.State = state
	job.Outcome = outcome
	job.Detail = detail
	o.recordJob(*job)
}

func (o *Orchestrator) recordJob(job PushJob) {
	job.UpdatedAt = o.now().UTC()
	if err := o.journal.Record(job); err != nil {
		log.Printf("journal record failed: job=%s state=%s err=%v", job.ID, job.State, err)
	}
}

func validatePushFiles(files []PushFile) []FileError {
	var fileErrors []FileError
	for _, file := range files {
		if validation := ValidatePath(file.Name); !validation.Valid {
			fileErrors = append(fileErrors, FileError{File: file.Name, State: validation.State})
		}
	}
	return fileErrors
}
