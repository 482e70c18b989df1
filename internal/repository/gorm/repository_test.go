package gormrepository

import (
	"context"
	"testing"
)

func TestNormalizeLimit(t *testing.T) {
	cases := []struct{ in, fallback, want int }{
		{0, 50, 50},
		{-1, 20, 20},
		{10, 50, 10},
		{900, 50, 500},
	}
	for _, c := range cases {
		if got := normalizeLimit(c.in, c.fallback); got != c.want {
			t.Fatalf("normalizeLimit(%d,%d)=%d want=%d", c.in, c.fallback, got, c.want)
		}
	}
}

func TestCleanStrings(t *testing.T) {
	got := cleanStrings([]string{" filled ", "", "canceled", "filled"})
	if len(got) != 2 || got[0] != "filled" || got[1] != "canceled" {
		t.Fatalf("cleanStrings=%v want=[filled canceled]", got)
	}
}

func TestStore_NilDBIsNoop(t *testing.T) {
	var s *Store
	agent, err := s.GetAgent(context.Background(), 1)
	if err != nil || agent != nil {
		t.Fatalf("agent=%v err=%v want nil,nil", agent, err)
	}
	n, err := New(nil).UpsertNewsItems(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v want 0,nil", n, err)
	}
}
