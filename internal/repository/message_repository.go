package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/agency-portal-api/internal/models"
)

// Read state is per reader, so program broadcasts can be read by each participant independently.
const messageSelect = `SELECT m.id, m.sender_id, m.recipient_id, m.program_id, m.subject, m.body, m.link, r.read_at, m.created_at
FROM messages m LEFT JOIN message_reads r ON r.message_id = m.id AND r.user_id = $1`

// MessageRepository stores direct and program-scoped messages.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs the repository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a message.
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO messages (id, sender_id, recipient_id, program_id, subject, body, link, created_at)
VALUES (:id, :sender_id, :recipient_id, :program_id, :subject, :body, :link, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// FindForReader returns a message with the reader's read state.
func (r *MessageRepository) FindForReader(ctx context.Context, id, readerID string) (*models.Message, error) {
	query := messageSelect + ` WHERE m.id = $2`
	var msg models.Message
	if err := r.db.GetContext(ctx, &msg, query, readerID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find message: %w", err)
	}
	return &msg, nil
}

// ListDirect returns messages addressed to the user.
func (r *MessageRepository) ListDirect(ctx context.Context, userID string) ([]models.Message, error) {
	query := messageSelect + ` WHERE m.recipient_id = $1 ORDER BY m.created_at DESC`
	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, query, userID); err != nil {
		return nil, fmt.Errorf("list direct messages: %w", err)
	}
	return msgs, nil
}

// ListForPrograms returns broadcasts posted to any of the programs.
func (r *MessageRepository) ListForPrograms(ctx context.Context, userID string, programIDs []string) ([]models.Message, error) {
	if len(programIDs) == 0 {
		return []models.Message{}, nil
	}
	query := messageSelect + ` WHERE m.recipient_id IS NULL AND m.program_id = ANY($2) ORDER BY m.created_at DESC`
	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, query, userID, pq.Array(programIDs)); err != nil {
		return nil, fmt.Errorf("list program messages: %w", err)
	}
	return msgs, nil
}

// ListSent returns messages authored by the user.
func (r *MessageRepository) ListSent(ctx context.Context, userID string) ([]models.Message, error) {
	query := messageSelect + ` WHERE m.sender_id = $1 ORDER BY m.created_at DESC`
	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, query, userID); err != nil {
		return nil, fmt.Errorf("list sent messages: %w", err)
	}
	return msgs, nil
}

// MarkRead records that the user has read the message. Repeated calls keep the first timestamp.
func (r *MessageRepository) MarkRead(ctx context.Context, messageID, userID string, at time.Time) error {
	const query = `INSERT INTO message_reads (message_id, user_id, read_at) VALUES ($1, $2, $3) ON CONFLICT (message_id, user_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, messageID, userID, at); err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	return nil
}
