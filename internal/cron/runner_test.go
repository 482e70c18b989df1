package cronrunner

import (
	"context"
	"testing"
)

func TestRunner_AddRejectsBadSpec(t *testing.T) {
	r := New(nil, context.Background())
	if _, err := r.Add("bad", "not a spec", func(context.Context) {}); err == nil {
		t.Fatalf("err=nil want parse error")
	}
	if r.Entries() != 0 {
		t.Fatalf("entries=%d want=0", r.Entries())
	}
}

func TestRunner_AddSecondsSpec(t *testing.T) {
	r := New(nil, nil)
	if _, err := r.Add("hourly", "0 0 * * * *", func(context.Context) {}); err != nil {
		t.Fatalf("err=%v", err)
	}
	if r.Entries() != 1 {
		t.Fatalf("entries=%d want=1", r.Entries())
	}
}
