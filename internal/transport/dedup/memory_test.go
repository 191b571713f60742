package dedup

import (
	"context"
	"testing"
	"time"
)

func TestMemoryFilterDetectsDuplicate(t *testing.T) {
	f := NewMemoryFilter(time.Minute)
	ctx := context.Background()

	dup, err := f.Seen(ctx, "msg-1")
	if err != nil {
		t.Fatal(err)
	}
	if dup {
		t.Fatal("expected first sighting to not be a duplicate")
	}

	dup, err = f.Seen(ctx, "msg-1")
	if err != nil {
		t.Fatal(err)
	}
	if !dup {
		t.Fatal("expected second sighting to be a duplicate")
	}
}

func TestMemoryFilterExpires(t *testing.T) {
	f := NewMemoryFilter(10 * time.Millisecond)
	ctx := context.Background()

	if dup, _ := f.Seen(ctx, "msg-1"); dup {
		t.Fatal("expected first sighting to not be a duplicate")
	}
	time.Sleep(20 * time.Millisecond)
	if dup, _ := f.Seen(ctx, "msg-1"); dup {
		t.Fatal("expected expired key to no longer be a duplicate")
	}
}

func TestMemoryFilterDistinctKeysIndependent(t *testing.T) {
	f := NewMemoryFilter(time.Minute)
	ctx := context.Background()

	if dup, _ := f.Seen(ctx, "a"); dup {
		t.Fatal("unexpected duplicate for key a")
	}
	if dup, _ := f.Seen(ctx, "b"); dup {
		t.Fatal("unexpected duplicate for key b")
	}
}
