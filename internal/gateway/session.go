package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is the unit of serial execution: one conversation's queue, one
// child ACP agent, one state machine.
type Session struct {
	ID          string
	UserID      string
	ContextID   string
	ProjectPath string
	RepoName    string
	CreatedAt   time.Time

	// Mu is the per-session named lock of spec §5: it serializes the
	// enqueue decision and the processNext decision. It must never be
	// held across a suspension on the ACP client or a completion
	// callback.
	Mu sync.Mutex

	ACPClient    ACPClient
	State        State
	IsProcessing bool
	Current      *Task
	Pending      []*Task

	PendingInteractions map[string]*Interaction
}

func newSession(userID, contextID, projectPath, repoName string) *Session {
	return &Session{
		ID:                  uuid.NewString(),
		UserID:              userID,
		ContextID:           contextID,
		ProjectPath:         projectPath,
		RepoName:            repoName,
		CreatedAt:           time.Now(),
		State:               StateIdle,
		PendingInteractions: make(map[string]*Interaction),
	}
}

// soleInteraction returns the session's only pending interaction, or nil
// if there are zero or (in violation of invariant 3) more than one.
func (s *Session) soleInteraction() (string, *Interaction) {
	if len(s.PendingInteractions) != 1 {
		return "", nil
	}
	for id, in := range s.PendingInteractions {
		return id, in
	}
	return "", nil
}

// rejectAllInteractions rejects and clears every pending interaction on
// the session. Caller must hold s.Mu.
func (s *Session) rejectAllInteractions(reason string) {
	for id, in := range s.PendingInteractions {
		in.Reject(reason)
		delete(s.PendingInteractions, id)
	}
}
