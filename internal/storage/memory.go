package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/andestrans/cargobot/internal/models"
)

type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[string]*models.Session),
	}
}

func (s *MemoryStorage) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, nil
	}
	return cloneSession(session)
}

func (s *MemoryStorage) UpsertSession(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied, err := cloneSession(session)
	if err != nil {
		return err
	}
	s.sessions[session.ID] = copied
	return nil
}

func (s *MemoryStorage) RenameSession(ctx context.Context, oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[oldID]
	if !exists {
		return fmt.Errorf("session not found")
	}
	delete(s.sessions, oldID)
	session.ID = newID
	session.Deleted = true
	s.sessions[newID] = session
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

// cloneSession deep-copies through JSON so callers cannot mutate stored state,
// matching the read-modify-write contract of the SQL implementation.
func cloneSession(session *models.Session) (*models.Session, error) {
	raw, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("error cloning session: %w", err)
	}
	var copied models.Session
	if err := json.Unmarshal(raw, &copied); err != nil {
		return nil, fmt.Errorf("error cloning session: %w", err)
	}
	return &copied, nil
}
