// Package planfmt normalizes an ACP agent's self-reported plan into the
// four status buckets (plus a total count) the gateway renders to chat
// users.
package planfmt

import (
	"fmt"
	"strings"
)

// Bucket is one of the four normalized plan-entry statuses.
type Bucket string

const (
	BucketCompleted  Bucket = "completed"
	BucketInProgress Bucket = "in_progress"
	BucketPending    Bucket = "pending"
	BucketOther      Bucket = "other"
)

// Entry is one plan step as reported by the agent, after status
// normalization.
type Entry struct {
	Content  string
	Status   Bucket
	Priority string
}

// Counts tallies entries per bucket plus the total.
type Counts struct {
	Completed  int
	InProgress int
	Pending    int
	Other      int
	Total      int
}

// Snapshot is the copy-on-read plan view exposed by the ACP client.
type Snapshot struct {
	Entries   []Entry
	UpdatedAt int64 // unix nanos, stamped by the caller
	Counts    Counts
	Current   *Entry
	Summary   string
}

// Normalize lowercases raw and buckets it per the gateway's fixed mapping.
func Normalize(raw string) Bucket {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed", "done":
		return BucketCompleted
	case "in_progress", "in-progress", "running", "active":
		return BucketInProgress
	case "pending", "todo", "not_started", "not-started":
		return BucketPending
	default:
		return BucketOther
	}
}

// StatusEmoji maps a bucket to its display emoji.
func StatusEmoji(b Bucket) string {
	switch b {
	case BucketCompleted:
		return "✅"
	case BucketInProgress:
		return "🚧"
	case BucketPending:
		return "⏳"
	default:
		return "❔"
	}
}

// PriorityEmoji maps a raw priority string to its display emoji.
func PriorityEmoji(priority string) string {
	switch strings.ToLower(strings.TrimSpace(priority)) {
	case "high":
		return "🔥"
	case "medium":
		return "⚖️"
	case "low":
		return "🧊"
	default:
		return "📌"
	}
}

// Summarize builds the counts, the first in_progress entry, and the
// human-readable summary line for a set of already-normalized entries.
func Summarize(entries []Entry) (Counts, *Entry) {
	var c Counts
	var current *Entry
	for i := range entries {
		e := &entries[i]
		c.Total++
		switch e.Status {
		case BucketCompleted:
			c.Completed++
		case BucketInProgress:
			c.InProgress++
			if current == nil {
				current = e
			}
		case BucketPending:
			c.Pending++
		default:
			c.Other++
		}
	}
	return c, current
}

// SummaryLine renders the "总计 N 步，完成 X，进行中 Y，待处理 Z" line.
func SummaryLine(c Counts) string {
	return fmt.Sprintf("总计 %d 步，完成 %d，进行中 %d，待处理 %d", c.Total, c.Completed, c.InProgress, c.Pending)
}

// Prefix renders the compact "plan progress" block the queue engine
// prepends to a task's response: title, summary line, first 3 entries,
// and a "... and N more" tail when there are more than 3.
func Prefix(title string, entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	counts, _ := Summarize(entries)
	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "**%s**\n", title)
	}
	b.WriteString(SummaryLine(counts))
	b.WriteString("\n")
	shown := entries
	if len(shown) > 3 {
		shown = shown[:3]
	}
	for _, e := range shown {
		fmt.Fprintf(&b, "%s %s %s\n", StatusEmoji(e.Status), PriorityEmoji(e.Priority), e.Content)
	}
	if rest := len(entries) - len(shown); rest > 0 {
		fmt.Fprintf(&b, "… and %d more\n", rest)
	}
	return b.String()
}
