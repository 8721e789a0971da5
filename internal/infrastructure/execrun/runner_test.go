package execrun

import "testing"

func TestTruncate(t *testing.T) {
	if got := Truncate("abc", 5); got != "abc" {
		t.Fatalf("Truncate() = %q", got)
	}
	if got := Truncate("abcdef", 3); got != "abc...(truncated)" {
		t.Fatalf("Truncate() = %q", got)
	}
}
