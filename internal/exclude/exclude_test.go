package exclude

import "testing"

func TestMatchBasic(t *testing.T) {
	s := New()
	if err := s.Add(`\.git$`); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !s.Match("/home/user/repo/.git", true) {
		t.Fatalf("expected .git to match")
	}
	if s.Match("/home/user/repo/main.go", false) {
		t.Fatalf("did not expect main.go to match")
	}
}

func TestMatchDirOnlyPattern(t *testing.T) {
	s := New()
	if err := s.Add(`node_modules/`); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !s.Match("node_modules", true) {
		t.Fatalf("expected directory match")
	}
	if s.Match("node_modules", false) {
		t.Fatalf("dir-only pattern should not match a file")
	}
}

func TestAddInvalidPattern(t *testing.T) {
	s := New()
	if err := s.Add(`(unclosed`); err == nil {
		t.Fatalf("expected a compile error")
	}
}

func TestMustAddPanicsOnInvalid(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected MustAdd to panic on an invalid pattern")
		}
	}()
	New().MustAdd(`(unclosed`)
}

func TestLen(t *testing.T) {
	s := New()
	s.MustAdd(`a`).MustAdd(`b`)
	if s.Len() != 2 {
		t.Fatalf("expected 2 patterns, got %d", s.Len())
	}
}
