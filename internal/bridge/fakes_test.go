package bridge

import (
	"context"
	"io"
	"sync"
	"time"
)

// fakeBackend implements ProjectStore, HistoryService, and UserDirectory in
// memory. Mutations bump the history version, mimicking the real platform
// where every tree change produces a new version.
type fakeBackend struct {
	mu sync.Mutex

	project    Project
	projectErr error

	entities   []Entity
	docs       map[string][]string
	files      map[string][]byte
	deleted    []string
	deleteErrs map[string]error
	upsertErr  error

	version       int
	versionQueue  []int
	versionAt     time.Time
	authorUserIDs []string

	labels    []Label
	snapshots map[int][]SnapshotFile
	users     map[string]User
}

func newFakeBackend(projectID string, version int) *fakeBackend {
	return &fakeBackend{
		project:   Project{ID: projectID, Name: "test project"},
		docs:      map[string][]string{},
		files:     map[string][]byte{},
		version:   version,
		snapshots: map[int][]SnapshotFile{},
		users:     map[string]User{},
	}
}

func (f *fakeBackend) GetProject(ctx context.Context, projectID string) (Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.projectErr != nil {
		return Project{}, f.projectErr
	}
	if projectID != f.project.ID {
		return Project{}, ErrNotFound
	}
	return f.project, nil
}

func (f *fakeBackend) GetAllEntities(ctx context.Context, projectID string) ([]Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Entity, len(f.entities))
	copy(out, f.entities)
	return out, nil
}

func (f *fakeBackend) UpsertDoc(ctx context.Context, projectID, path string, lines []string, actorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.docs[path] = lines
	f.recordEntity(path, EntityDoc)
	f.version++
	return nil
}

func (f *fakeBackend) UpsertFile(ctx context.Context, projectID, path string, content io.Reader, actorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	f.files[path] = data
	f.recordEntity(path, EntityFile)
	f.version++
	return nil
}

func (f *fakeBackend) DeleteEntity(ctx context.Context, projectID, path, actorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.deleteErrs[path]; ok {
		return err
	}
	f.deleted = append(f.deleted, path)
	for i, entity := range f.entities {
		if entity.Path == path {
			f.entities = append(f.entities[:i], f.entities[i+1:]...)
			break
		}
	}
	delete(f.docs, path)
	delete(f.files, path)
	f.version++
	return nil
}

func (f *fakeBackend) recordEntity(path string, kind EntityKind) {
	for i, entity := range f.entities {
		if entity.Path == path {
			f.entities[i].Kind = kind
			return
		}
	}
	f.entities = append(f.entities, Entity{Path: path, Kind: kind})
}

func (f *fakeBackend) GetVersion(ctx context.Context, projectID string) (VersionMarker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	version := f.version
	if len(f.versionQueue) > 0 {
		version = f.versionQueue[0]
		f.versionQueue = f.versionQueue[1:]
	}
	return VersionMarker{
		Version:       version,
		Timestamp:     f.versionAt,
		AuthorUserIDs: f.authorUserIDs,
	}, nil
}

func (f *fakeBackend) GetLabels(ctx context.Context, projectID string) ([]Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Label, len(f.labels))
	copy(out, f.labels)
	return out, nil
}

func (f *fakeBackend) GetSnapshotAt(ctx context.Context, projectID string, version int) ([]SnapshotFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	files, ok := f.snapshots[version]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]SnapshotFile, len(files))
	copy(out, files)
	return out, nil
}

func (f *fakeBackend) GetUser(ctx context.Context, userID string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (f *fakeBackend) currentVersion() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version
}

func (f *fakeBackend) docLines(path string) ([]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines, ok := f.docs[path]
	return lines, ok
}

func (f *fakeBackend) fileContent(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	return data, ok
}

func (f *fakeBackend) deletedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.deleted))
	copy(out, f.deleted)
	return out
}
