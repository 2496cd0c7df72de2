package bridge

import "time"

// UserInfo is the author shape the bridge expects on version info and labels.
type UserInfo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// VersionInfo is the response body for the latest-version lookup.
type VersionInfo struct {
	LatestVerID int      `json:"latestVerId"`
	LatestVerAt string   `json:"latestVerAt"`
	LatestVerBy UserInfo `json:"latestVerBy"`
}

// SavedVersion is one user-created label, newest version first when listed.
type SavedVersion struct {
	VersionID int      `json:"versionId"`
	Comment   string   `json:"comment"`
	User      UserInfo `json:"user"`
	CreatedAt string   `json:"createdAt"`
}

// SnapshotPair is the bridge's two-element wire encoding: [value, path].
// For srcs the value is the full file content, for atts a signed download URL.
type SnapshotPair [2]string

type SnapshotResponse struct {
	Srcs []SnapshotPair `json:"srcs"`
	Atts []SnapshotPair `json:"atts"`
}

// PushFile describes one file in a push. An empty URL means the file exists
// but is unchanged since the last push; absence of a previously known path
// from the whole batch means the file was deleted.
type PushFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type PushRequest struct {
	LatestVerID int        `json:"latestVerId"`
	Files       []PushFile `json:"files"`
	PostbackURL string     `json:"postbackUrl"`
}

// PushAck is the synchronous response to a push: 202 accepted or 409 outOfDate.
type PushAck struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FileError reports a single invalid file in an invalidFiles postback.
type FileError struct {
	File  string `json:"file"`
	State string `json:"state"`
}

// Postback is the terminal outcome of an accepted push, delivered to the
// caller-supplied postback URL. Exactly one variant's fields are populated.
type Postback struct {
	Code        string      `json:"code"`
	Message     string      `json:"message,omitempty"`
	LatestVerID *int        `json:"latestVerId,omitempty"`
	Errors      []FileError `json:"errors,omitempty"`
}

const (
	PostbackCodeUpToDate     = "upToDate"
	PostbackCodeOutOfDate    = "outOfDate"
	PostbackCodeInvalidFiles = "invalidFiles"
	PostbackCodeError        = "error"
)

func upToDatePostback(version int) Postback {
	return Postback{Code: PostbackCodeUpToDate, LatestVerID: &version}
}

func outOfDatePostback() Postback {
	return Postback{Code: PostbackCodeOutOfDate, Message: "Out of Date"}
}

func invalidFilesPostback(errs []FileError) Postback {
	return Postback{Code: PostbackCodeInvalidFiles, Errors: errs}
}

func errorPostback() Postback {
	return Postback{Code: PostbackCodeError, Message: "Unexpected Error"}
}

// PathValidation is the outcome of checking a candidate relative file path.
type PathValidation struct {
	Valid bool
	State string
}

const (
	PathStateOK         = "ok"
	PathStateError      = "error"
	PathStateDisallowed = "disallowed"
)

// VersionMarker is the authoritative current version of a project's history.
type VersionMarker struct {
	Version       int
	Timestamp     time.Time
	AuthorUserIDs []string
}

// Label is an immutable user-created bookmark of a version.
type Label struct {
	Version   int
	Comment   string
	UserID    string
	CreatedAt time.Time
}

// SnapshotFile is one leaf of a project tree at a fixed version, as reported
// by the history service. Editable files carry content inline; binary files
// carry only the blob hash.
type SnapshotFile struct {
	Path     string
	Editable bool
	Content  string
	Hash     string
}
