package conversation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Key addresses one thread of one user.
type Key struct {
	ThreadID string
	UserID   string
}

// MessageLog persists the append-only log of a thread.
type MessageLog interface {
	Load(ctx context.Context, key Key) (Log, error)
	Append(ctx context.Context, key Key, msgs []Message) error
}

type HistoryEntry struct {
	ThreadID  string    `json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryIndex lists a user's threads. Record keeps the first CreatedAt and moves UpdatedAt.
type HistoryIndex interface {
	Record(ctx context.Context, userID, threadID string, at time.Time) error
	List(ctx context.Context, userID string) ([]HistoryEntry, error)
}

// SortHistory orders entries most recently updated first.
func SortHistory(entries []HistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
	})
}

// MemoryStore keeps logs and history in process. It serves tests and single-node
// development runs.
type MemoryStore struct {
	mu      sync.Mutex
	logs    map[Key]Log
	history map[string]map[string]HistoryEntry
}

var (
	_ MessageLog   = (*MemoryStore)(nil)
	_ HistoryIndex = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		logs:    map[Key]Log{},
		history: map[string]map[string]HistoryEntry{},
	}
}

func (s *MemoryStore) Load(_ context.Context, key Key) (Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logs[key], nil
}

func (s *MemoryStore) Append(_ context.Context, key Key, msgs []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[key] = s.logs[key].Append(msgs...)
	return nil
}

func (s *MemoryStore) Record(_ context.Context, userID, threadID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byThread := s.history[userID]
	if byThread == nil {
		byThread = map[string]HistoryEntry{}
		s.history[userID] = byThread
	}
	e, ok := byThread[threadID]
	if !ok {
		e = HistoryEntry{ThreadID: threadID, CreatedAt: at}
	}
	e.UpdatedAt = at
	byThread[threadID] = e
	return nil
}

func (s *MemoryStore) List(_ context.Context, userID string) ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryEntry, 0, len(s.history[userID]))
	for _, e := range s.history[userID] {
		out = append(out, e)
	}
	SortHistory(out)
	return out, nil
}
