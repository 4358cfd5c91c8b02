package template

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when no template matches
var ErrNotFound = errors.New("template not found")

// Template is one generated document revision
type Template struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Digest         string    `json:"digest"`
	HTML           string    `json:"html,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store persists generated templates in SQLite
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Digest returns the content address of a document
func Digest(html string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(html)))
}

// Open opens (and migrates) the SQLite database at path
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createTemplatesTable := `
	CREATE TABLE IF NOT EXISTS templates (
		id TEXT PRIMARY KEY,
		conversation_id TEXT,
		digest TEXT UNIQUE,
		html TEXT,
		created_at DATETIME
	);`

	if _, err := db.Exec(createTemplatesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create templates table: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Save stores a document. Saving content that is already stored returns the
// existing revision instead of a duplicate.
func (s *Store) Save(ctx context.Context, conversationID, html string) (Template, error) {
	digest := Digest(html)

	existing, err := s.byDigest(ctx, digest)
	if err == nil {
		s.logger.Info("template already stored", "template_id", existing.ID, "digest", digest[:16])
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Template{}, err
	}

	t := Template{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Digest:         digest,
		HTML:           html,
		CreatedAt:      time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO templates (id, conversation_id, digest, html, created_at) VALUES (?, ?, ?, ?, ?)",
		t.ID, t.ConversationID, t.Digest, t.HTML, t.CreatedAt,
	)
	if err != nil {
		return Template{}, fmt.Errorf("failed to save template: %w", err)
	}

	s.logger.Info("template saved", "template_id", t.ID, "conversation_id", conversationID, "size", len(html))
	return t, nil
}

// Get returns a template by ID
func (s *Store) Get(ctx context.Context, id string) (Template, error) {
	return s.queryOne(ctx,
		"SELECT id, conversation_id, digest, html, created_at FROM templates WHERE id = ?", id)
}

// Latest returns the most recent template
func (s *Store) Latest(ctx context.Context) (Template, error) {
	return s.queryOne(ctx,
		"SELECT id, conversation_id, digest, html, created_at FROM templates ORDER BY created_at DESC, rowid DESC LIMIT 1")
}

// List returns all templates, newest first, without their HTML
func (s *Store) List(ctx context.Context) ([]Template, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, conversation_id, digest, created_at FROM templates ORDER BY created_at DESC, rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	templates := []Template{}
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Digest, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) byDigest(ctx context.Context, digest string) (Template, error) {
	return s.queryOne(ctx,
		"SELECT id, conversation_id, digest, html, created_at FROM templates WHERE digest = ?", digest)
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (Template, error) {
	var t Template
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&t.ID, &t.ConversationID, &t.Digest, &t.HTML, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Template{}, ErrNotFound
	}
	if err != nil {
		return Template{}, fmt.Errorf("failed to load template: %w", err)
	}
	return t, nil
}
