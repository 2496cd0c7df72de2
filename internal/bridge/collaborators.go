package bridge

import (
	"context"
	"io"
)

type EntityKind string

const (
	EntityDoc  EntityKind = "doc"
	EntityFile EntityKind = "file"
)

// Entity is one leaf of the project's current tree. Paths are absolute within
// the project and start with "/", matching the document store's convention.
type Entity struct {
	Path string
	Kind EntityKind
}

type Project struct {
	ID   string
	Name string
}

type User struct {
	Email string
	Name  string
}

// ProjectStore is the document/file storage collaborator. The engine never
// persists tree state itself; every mutation goes through this interface.
type ProjectStore interface {
	GetProject(ctx context.Context, projectID string) (Project, error)
	GetAllEntities(ctx context.Context, projectID string) ([]Entity, error)
	UpsertDoc(ctx context.Context, projectID, path string, lines []string, actorID string) error
	UpsertFile(ctx context.Context, projectID, path string, content io.Reader, actorID string) error
	DeleteEntity(ctx context.Context, projectID, path, actorID string) error
}

// HistoryService is the external versioning collaborator. Versions are
// monotonically non-decreasing per project and owned entirely by this service.
type HistoryService interface {
	GetVersion(ctx context.Context, projectID string) (VersionMarker, error)
	GetLabels(ctx context.Context, projectID string) ([]Label, error)
	GetSnapshotAt(ctx context.Context, projectID string, version int) ([]SnapshotFile, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (User, error)
}
