package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/andestrans/cargobot/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `
		SELECT session_id, messages, state, interaction_data, user_data, is_deleted
		FROM interactions
		WHERE session_id = $1`

	var (
		session  models.Session
		state    sql.NullString
		messages []byte
		scratch  []byte
		profile  []byte
	)

	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID, &messages, &state, &scratch, &profile, &session.Deleted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying session: %w", err)
	}

	if err := json.Unmarshal(messages, &session.Transcript); err != nil {
		return nil, fmt.Errorf("error decoding transcript: %w", err)
	}
	if len(scratch) > 0 {
		if err := json.Unmarshal(scratch, &session.Scratch); err != nil {
			return nil, fmt.Errorf("error decoding interaction data: %w", err)
		}
	}
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &session.Profile); err != nil {
			return nil, fmt.Errorf("error decoding user data: %w", err)
		}
	}
	session.State = state.String

	return &session, nil
}

func (s *PostgresStorage) UpsertSession(ctx context.Context, session *models.Session) error {
	messages, err := json.Marshal(session.Transcript)
	if err != nil {
		return fmt.Errorf("error encoding transcript: %w", err)
	}
	if session.Transcript == nil {
		messages = []byte("[]")
	}
	scratch, err := json.Marshal(session.Scratch)
	if err != nil {
		return fmt.Errorf("error encoding interaction data: %w", err)
	}
	profile, err := json.Marshal(session.Profile)
	if err != nil {
		return fmt.Errorf("error encoding user data: %w", err)
	}

	query := `
		INSERT INTO interactions (session_id, messages, state, interaction_data, user_data, is_deleted, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NOW())
		ON CONFLICT (session_id) DO UPDATE SET
			messages = EXCLUDED.messages,
			state = EXCLUDED.state,
			interaction_data = EXCLUDED.interaction_data,
			user_data = EXCLUDED.user_data,
			is_deleted = EXCLUDED.is_deleted,
			updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, session.ID, messages, session.State, scratch, profile, session.Deleted); err != nil {
		return fmt.Errorf("error upserting session: %w", err)
	}

	return nil
}

func (s *PostgresStorage) RenameSession(ctx context.Context, oldID, newID string) error {
	query := `
		UPDATE interactions
		SET session_id = $2, is_deleted = TRUE, updated_at = NOW()
		WHERE session_id = $1`

	result, err := s.db.ExecContext(ctx, query, oldID, newID)
	if err != nil {
		return fmt.Errorf("error renaming session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("session not found")
	}

	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
