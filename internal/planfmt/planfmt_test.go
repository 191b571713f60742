package planfmt

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]Bucket{
		"COMPLETED":    BucketCompleted,
		"done":         BucketCompleted,
		"in_progress":  BucketInProgress,
		"in-progress":  BucketInProgress,
		"running":      BucketInProgress,
		"active":       BucketInProgress,
		"pending":      BucketPending,
		"todo":         BucketPending,
		"not_started":  BucketPending,
		"not-started":  BucketPending,
		"whatever-not": BucketOther,
		"":             BucketOther,
	}
	for raw, want := range cases {
		if got := Normalize(raw); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestPriorityEmoji(t *testing.T) {
	cases := map[string]string{"high": "🔥", "medium": "⚖️", "low": "🧊", "urgent": "📌", "": "📌"}
	for p, want := range cases {
		if got := PriorityEmoji(p); got != want {
			t.Errorf("PriorityEmoji(%q) = %q, want %q", p, got, want)
		}
	}
}

func TestSummarizeCurrentIsFirstInProgress(t *testing.T) {
	entries := []Entry{
		{Content: "a", Status: BucketCompleted},
		{Content: "b", Status: BucketInProgress},
		{Content: "c", Status: BucketInProgress},
		{Content: "d", Status: BucketPending},
	}
	counts, current := Summarize(entries)
	if counts.Total != 4 || counts.Completed != 1 || counts.InProgress != 2 || counts.Pending != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	if current == nil || current.Content != "b" {
		t.Fatalf("expected current entry 'b', got %+v", current)
	}
}

func TestPrefixIdempotenceIsCallerResponsibility(t *testing.T) {
	entries := []Entry{{Content: "a", Status: BucketPending}}
	p1 := Prefix("Plan", entries)
	p2 := Prefix("Plan", entries)
	if p1 != p2 {
		t.Fatalf("Prefix should be deterministic for identical input")
	}
	if p1 == "" {
		t.Fatal("expected non-empty prefix for non-empty entries")
	}
}

func TestPrefixEmptyEntries(t *testing.T) {
	if got := Prefix("Plan", nil); got != "" {
		t.Fatalf("expected empty prefix for no entries, got %q", got)
	}
}

func TestPrefixTruncatesToThreeWithTail(t *testing.T) {
	entries := []Entry{
		{Content: "a", Status: BucketPending},
		{Content: "b", Status: BucketPending},
		{Content: "c", Status: BucketPending},
		{Content: "d", Status: BucketPending},
		{Content: "e", Status: BucketPending},
	}
	out := Prefix("Plan", entries)
	if !contains(out, "… and 2 more") {
		t.Fatalf("expected tail for 2 remaining entries, got %q", out)
	}
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && (func() bool {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
		return false
	})()
}
