package version

import "testing"

func TestStringAppendsCommit(t *testing.T) {
	oldV, oldC := Version, Commit
	defer func() { Version, Commit = oldV, oldC }()

	Version, Commit = "1.2.0", "abc1234"
	if got := String(); got != "1.2.0+abc1234" {
		t.Fatalf("String() = %q", got)
	}
	Commit = ""
	if got := String(); got == "" || got[:5] != "1.2.0" {
		t.Fatalf("String() without commit = %q", got)
	}
}
