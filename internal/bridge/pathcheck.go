package bridge

import "strings"

// ReservedControlDir is the VCS metadata directory the bridge manages itself;
// pushes and snapshots must never touch it.
const ReservedControlDir = ".git"

// ValidatePath checks a candidate relative file path against the naming and
// security rules shared by the pull and push paths. It is pure and total.
//
// Rules, in order: empty or whitespace-only, NUL bytes, ".." sequences and
// leading "/" are errors; paths at or under the reserved control directory are
// structurally fine but policy-disallowed.
func ValidatePath(path string) PathValidation {
	if strings.TrimSpace(path) == "" {
		return PathValidation{Valid: false, State: PathStateError}
	}
	if strings.ContainsRune(path, '\x00') {
		return PathValidation{Valid: false, State: PathStateError}
	}
	if strings.Contains(path, "..") || strings.HasPrefix(path, "/") {
		return PathValidation{Valid: false, State: PathStateError}
	}
	if path == ReservedControlDir || strings.HasPrefix(path, ReservedControlDir+"/") {
		return PathValidation{Valid: false, State: PathStateDisallowed}
	}
	return PathValidation{Valid: true, State: PathStateOK}
}
