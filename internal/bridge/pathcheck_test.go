package bridge

import "testing"

func TestValidatePath(t *testing.T) {
	cases := []struct {
		name  string
		path  string
		valid bool
		state string
	}{
		{"simple", "main.tex", true, PathStateOK},
		{"nested", "chapters/intro.tex", true, PathStateOK},
		{"dot prefix allowed", ".gitignore", true, PathStateOK},
		{"empty", "", false, PathStateError},
		{"whitespace only", "   ", false, PathStateError},
		{"nul byte", "a\x00b", false, PathStateError},
		{"dotdot segment", "../escape", false, PathStateError},
		{"dotdot inside", "a/../b", false, PathStateError},
		{"dotdot substring", "a..b", false, PathStateError},
		{"leading slash", "/abs", false, PathStateError},
		{"git dir itself", ".git", false, PathStateDisallowed},
		{"under git dir", ".git/config", false, PathStateDisallowed},
		{"git prefix file ok", ".gitmodules", true, PathStateOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ValidatePath(tc.path)
			if got.Valid != tc.valid || got.State != tc.state {
				t.Fatalf("ValidatePath(%q) = %+v, want valid=%v state=%s", tc.path, got, tc.valid, tc.state)
			}
		})
	}
}
