package storage

import (
	"context"

	"github.com/andestrans/cargobot/internal/models"
)

// Storage persists session records. GetSession returns (nil, nil) when no
// record exists for the id. UpsertSession writes the whole record in one
// atomic call; a turn performs exactly one read and one write.
type Storage interface {
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	UpsertSession(ctx context.Context, session *models.Session) error
	// RenameSession moves a record to a new id, used to archive soft-deleted
	// conversations under a DELETED-prefixed key.
	RenameSession(ctx context.Context, oldID, newID string) error
	Close() error
}
