package bridge

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strings"
	"time"
)

// SnapshotReader serves the pull side: latest-version info, saved-version
// labels, and full snapshots at a fixed version. It holds no project state of
// its own; everything is assembled per call from the collaborators.
type SnapshotReader struct {
	store       ProjectStore
	history     HistoryService
	users       UserDirectory
	blobBaseURL string
	tokenSecret string
	tokenTTL    time.Duration
	now         func() time.Time
}

type SnapshotReaderOptions struct {
	Store       ProjectStore
	History     HistoryService
	Users       UserDirectory
	BlobBaseURL string
	TokenSecret string
	TokenTTL    time.Duration
	Now         func() time.Time
}

func NewSnapshotReader(opts SnapshotReaderOptions) (*SnapshotReader, error) {
	if opts.Store == nil || opts.History == nil {
		return nil, fmt.Errorf("project store and history service are required")
	}
	blobBaseURL := strings.TrimRight(strings.TrimSpace(opts.BlobBaseURL), "/")
	if blobBaseURL == "" {
		return nil, fmt.Errorf("blob base url is required")
	}
	if strings.TrimSpace(opts.TokenSecret) == "" {
		return nil, fmt.Errorf("blob token secret is required")
	}
	tokenTTL := opts.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = DefaultBlobTokenTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &SnapshotReader{
		store:       opts.Store,
		history:     opts.History,
		users:       opts.Users,
		blobBaseURL: blobBaseURL,
		tokenSecret: opts.TokenSecret,
		tokenTTL:    tokenTTL,
		now:         now,
	}, nil
}

// GetDocInfo returns the latest version marker for a project with the first
// author resolved to email and display name. Authors that cannot be resolved
// fall back to "unknown" rather than failing the whole lookup.
func (r *SnapshotReader) GetDocInfo(ctx context.Context, projectID string) (VersionInfo, error) {
	if _, err := r.store.GetProject(ctx, projectID); err != nil {
		return VersionInfo{}, err
	}
	marker, err := r.history.GetVersion(ctx, projectID)
	if err != nil {
		return VersionInfo{}, err
	}
	at := marker.Timestamp
	if at.IsZero() {
		at = r.now()
	}
	return VersionInfo{
		LatestVerID: marker.Version,
		LatestVerAt: at.UTC().Format(time.RFC3339),
		LatestVerBy: r.resolveAuthor(ctx, marker.AuthorUserIDs),
	}, nil
}

// GetSavedVers lists a project's labels, newest version first. A project with
// no labels recorded yields an empty list, not an error.
func (r *SnapshotReader) GetSavedVers(ctx context.Context, projectID string) ([]SavedVersion, error) {
	if _, err := r.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	labels, err := r.history.GetLabels(ctx, projectID)
	if err != nil {
		return nil, err
	}
	saved := make([]SavedVersion, 0, len(labels))
	for _, label := range labels {
		saved = append(saved, SavedVersion{
			VersionID: label.Version,
			Comment:   label.Comment,
			User:      r.resolveAuthor(ctx, []string{label.UserID}),
			CreatedAt: label.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	sort.SliceStable(saved, func(i, j int) bool {
		return saved[i].VersionID > saved[j].VersionID
	})
	return saved, nil
}

// GetSnapshot assembles the point-in-time view of a project's tree at the
// given version: editable content inline in srcs, binary files as short-lived
// signed download URLs in atts. The first invalid path aborts the whole read.
func (r *SnapshotReader) GetSnapshot(ctx context.Context, projectID string, version int) (SnapshotResponse, error) {
	if _, err := r.store.GetProject(ctx, projectID); err != nil {
		return SnapshotResponse{}, err
	}
	files, err := r.history.GetSnapshotAt(ctx, projectID, version)
	if err != nil {
		return SnapshotResponse{}, err
	}
	resp := SnapshotResponse{
		Srcs: []SnapshotPair{},
		Atts: []SnapshotPair{},
	}
	for _, file := range files {
		validation := ValidatePath(file.Path)
		if !validation.Valid {
			log.Printf("invalid file path in snapshot: project=%s path=%q state=%s", projectID, file.Path, validation.State)
			return SnapshotResponse{}, &PathValidationError{Path: file.Path, State: validation.State}
		}
		if file.Editable {
			resp.Srcs = append(resp.Srcs, SnapshotPair{file.Content, file.Path})
			continue
		}
		blobURL, err := r.signedBlobURL(projectID, file.Hash)
		if err != nil {
			return SnapshotResponse{}, err
		}
		resp.Atts = append(resp.Atts, SnapshotPair{blobURL, file.Path})
	}
	return resp, nil
}

func (r *SnapshotReader) signedBlobURL(projectID, hash string) (string, error) {
	token, err := SignBlobToken(r.tokenSecret, projectID, hash, r.now().Add(r.tokenTTL))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/projects/%s/blobs/%s?token=%s",
		r.blobBaseURL, url.PathEscape(projectID), url.PathEscape(hash), url.QueryEscape(token)), nil
}

func (r *SnapshotReader) resolveAuthor(ctx context.Context, userIDs []string) UserInfo {
	unknown := UserInfo{Email: "unknown", Name: "unknown"}
	if r.users == nil || len(userIDs) == 0 || strings.TrimSpace(userIDs[0]) == "" {
		return unknown
	}
	user, err := r.users.GetUser(ctx, userIDs[0])
	if err != nil {
		return unknown
	}
	info := unknown
	if strings.TrimSpace(user.Email) != "" {
		info.Email = user.Email
	}
	if strings.TrimSpace(user.Name) != "" {
		info.Name = user.Name
	}
	return info
}
