// Package session persists the vendor conversation state: one chat id per
// logical conversation and the parent-chain pointer mutated after every turn.
package session

import (
	"context"
	"sync"
	"time"

	"gorm.io/datatypes"
)

// Session is the conversation state for one conversation key
type Session struct {
	Key       string  `gorm:"primaryKey;size:128" json:"key"`
	ChatID    string  `gorm:"size:64" json:"chat_id"`
	ParentID  *string `gorm:"size:64" json:"parent_id"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Link is the narrow contract the protocol core needs from persistence:
// read the current parent id before a turn, write the new one after.
// A nil parent id means the conversation has not had a turn yet.
type Link interface {
	GetParentID(ctx context.Context, conversationKey string) (*string, error)
	SetParentID(ctx context.Context, conversationKey, value string) error
}

// Store extends Link with full session access for the HTTP surface
type Store interface {
	Link
	Get(ctx context.Context, conversationKey string) (*Session, error)
	Save(ctx context.Context, sess *Session) error
}

// RequestLog records one proxied request for later inspection
type RequestLog struct {
	ID           uint   `gorm:"primaryKey"`
	SessionKey   string `gorm:"size:128;index"`
	Model        string `gorm:"size:128"`
	IsStream     bool
	IsSuccess    bool
	StatusCode   int
	DurationMs   int64
	RequestBody  datatypes.JSON
	ResponseBody datatypes.JSON
	ErrorMessage string `gorm:"type:text"`
	CreatedAt    time.Time
}

// RequestLogStore is the narrow persistence surface of the request recorder
type RequestLogStore interface {
	RecordRequest(ctx context.Context, entry *RequestLog) error
}

// MemoryStore is an in-process Store used by tests and single-node setups
// without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logs     []*RequestLog
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Get returns the session for the key, or nil when none exists
func (s *MemoryStore) Get(ctx context.Context, key string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	if !ok {
		return nil, nil
	}
	clone := *sess
	return &clone, nil
}

// Save upserts the session
func (s *MemoryStore) Save(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *sess
	clone.UpdatedAt = time.Now()
	s.sessions[sess.Key] = &clone
	return nil
}

// GetParentID implements Link
func (s *MemoryStore) GetParentID(ctx context.Context, key string) (*string, error) {
	sess, err := s.Get(ctx, key)
	if err != nil || sess == nil {
		return nil, err
	}
	return sess.ParentID, nil
}

// SetParentID implements Link
func (s *MemoryStore) SetParentID(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		sess = &Session{Key: key, CreatedAt: time.Now()}
		s.sessions[key] = sess
	}
	sess.ParentID = &value
	sess.UpdatedAt = time.Now()
	return nil
}

// RecordRequest implements RequestLogStore
func (s *MemoryStore) RecordRequest(ctx context.Context, entry *RequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.CreatedAt = time.Now()
	s.logs = append(s.logs, entry)
	return nil
}

// RequestLogs returns a snapshot of the recorded logs
func (s *MemoryStore) RequestLogs() []*RequestLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*RequestLog, len(s.logs))
	copy(out, s.logs)
	return out
}
