package bridge

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sort"
)

// ReconciliationPlan is the derived diff between the project's current entity
// paths and the incoming push batch. Upserts keep the bridge's relative names;
// deletes carry the store's absolute paths.
type ReconciliationPlan struct {
	Upserts []PushFile
	Deletes []string
}

// DeleteResult records one best-effort deletion outcome.
type DeleteResult struct {
	Path string
	Err  error
}

// Reconciler drives the push side: it computes the plan and applies it
// file-by-file against the document store. All upserts complete before any
// delete is attempted, so a rename never transiently loses its content.
type Reconciler struct {
	store      ProjectStore
	history    HistoryService
	downloader *Downloader
	classifier Classifier
}

func NewReconciler(store ProjectStore, history HistoryService, downloader *Downloader) (*Reconciler, error) {
	if store == nil || history == nil || downloader == nil {
		return nil, fmt.Errorf("store, history, and downloader are required")
	}
	return &Reconciler{
		store:      store,
		history:    history,
		downloader: downloader,
	}, nil
}

// Plan diffs the existing tree against the incoming descriptors. Files whose
// descriptor carries no URL are unchanged and excluded from upserts; existing
// paths absent from the batch become deletes.
func (r *Reconciler) Plan(existing []Entity, incoming []PushFile) ReconciliationPlan {
	plan := ReconciliationPlan{
		Upserts: make([]PushFile, 0, len(incoming)),
		Deletes: make([]string, 0),
	}
	incomingPaths := make(map[string]struct{}, len(incoming))
	for _, file := range incoming {
		incomingPaths["/"+file.Name] = struct{}{}
		if file.URL != "" {
			plan.Upserts = append(plan.Upserts, file)
		}
	}
	for _, entity := range existing {
		if _, ok := incomingPaths[entity.Path]; !ok {
			plan.Deletes = append(plan.Deletes, entity.Path)
		}
	}
	sort.Strings(plan.Deletes)
	return plan
}

// Apply executes the plan: download, classify, and upsert each changed file,
// then delete vanished paths best-effort, then re-read the authoritative
// version. An upsert failure aborts the push; a delete failure is recorded
// and does not stop the remaining deletes.
func (r *Reconciler) Apply(ctx context.Context, projectID string, plan ReconciliationPlan, existingKinds map[string]EntityKind, actorID string) (int, []DeleteResult, error) {
	for _, file := range plan.Upserts {
		if err := r.applyFile(ctx, projectID, file, existingKinds, actorID); err != nil {
			return 0, nil, fmt.Errorf("upserting %s: %w", file.Name, err)
		}
	}

	deleteResults := make([]DeleteResult, 0, len(plan.Deletes))
	for _, path := range plan.Deletes {
		err := r.store.DeleteEntity(ctx, projectID, path, actorID)
		if err != nil {
			log.Printf("failed to delete entity: project=%s path=%s err=%v", projectID, path, err)
		}
		deleteResults = append(deleteResults, DeleteResult{Path: path, Err: err})
	}

	marker, err := r.history.GetVersion(ctx, projectID)
	if err != nil {
		return 0, deleteResults, err
	}
	return marker.Version, deleteResults, nil
}

func (r *Reconciler) applyFile(ctx context.Context, projectID string, file PushFile, existingKinds map[string]EntityKind, actorID string) error {
	scratchPath, err := r.downloader.Fetch(ctx, projectID, file.URL)
	if err != nil {
		return err
	}
	defer func() {
		if removeErr := r.downloader.Remove(scratchPath); removeErr != nil {
			log.Printf("failed to remove scratch file: path=%s err=%v", scratchPath, removeErr)
		}
	}()

	content, err := r.downloader.ReadAll(scratchPath)
	if err != nil {
		return err
	}
	elementPath := "/" + file.Name
	if r.classifier.Classify(file.Name, content, existingKinds) == EntityDoc {
		return r.store.UpsertDoc(ctx, projectID, elementPath, SplitLines(string(content)), actorID)
	}
	return r.store.UpsertFile(ctx, projectID, elementPath, bytes.NewReader(content), actorID)
}
