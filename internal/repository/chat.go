package repository

import (
	"context"
	"errors"
	"fmt"

	"trash2action-backend/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const conversationColumns = `id, participant_a, participant_b, unread_a, unread_b,
	message_count, last_message_body, last_message_at, created_at`

const messageColumns = `id::text, conversation_id, seq, sender_id, receiver_id, body, is_read, created_at`

// ChatRepository stores conversations and messages in Postgres. Writes to one
// conversation serialize on its row lock.
type ChatRepository struct {
	pool *pgxpool.Pool
}

func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{pool: pool}
}

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	c := &model.Conversation{}
	err := row.Scan(&c.ID, &c.ParticipantA, &c.ParticipantB, &c.UnreadA, &c.UnreadB,
		&c.MessageCount, &c.LastMessage, &c.LastMessageAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func scanMessage(row pgx.Row) (*model.Message, error) {
	m := &model.Message{}
	err := row.Scan(&m.ID, &m.ConversationID, &m.Seq, &m.SenderID, &m.ReceiverID, &m.Text, &m.Read, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetOrCreate inserts the conversation if missing and returns the stored row.
// Concurrent callers for the same pair all observe the same conversation.
func (r *ChatRepository) GetOrCreate(ctx context.Context, a, b string) (*model.Conversation, error) {
	key := model.ConversationKey(a, b)
	low, high, ok := model.SplitConversationKey(key)
	if !ok {
		return nil, fmt.Errorf("invalid participant pair %q/%q", a, b)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversations (id, participant_a, participant_b)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, key, low, high)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return r.Get(ctx, key)
}

func (r *ChatRepository) Get(ctx context.Context, id string) (*model.Conversation, error) {
	return scanConversation(r.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
}

// Append stores one message. The conversation row update and the message
// insert run as a single statement: seq comes from the incremented
// message_count and created_at never goes backwards within a conversation.
func (r *ChatRepository) Append(ctx context.Context, conversationID, senderID, text string) (*model.Message, error) {
	msg, err := scanMessage(r.pool.QueryRow(ctx, `
		WITH conv AS (
			UPDATE conversations SET
				message_count = message_count + 1,
				unread_a = unread_a + CASE WHEN participant_b = $2 THEN 1 ELSE 0 END,
				unread_b = unread_b + CASE WHEN participant_a = $2 THEN 1 ELSE 0 END,
				last_message_body = $3,
				last_message_at = GREATEST(clock_timestamp(), COALESCE(last_message_at, '-infinity'::timestamptz))
			WHERE id = $1 AND (participant_a = $2 OR participant_b = $2)
			RETURNING id, message_count, last_message_at,
				CASE WHEN participant_a = $2 THEN participant_b ELSE participant_a END AS receiver_id
		)
		INSERT INTO messages (conversation_id, seq, sender_id, receiver_id, body, created_at)
		SELECT id, message_count, $2, receiver_id, $3, last_message_at FROM conv
		RETURNING `+messageColumns,
		conversationID, senderID, text))
	if err == nil {
		return msg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return nil, r.missOrForbidden(ctx, conversationID)
}

// missOrForbidden explains why a participant-scoped write matched no row.
func (r *ChatRepository) missOrForbidden(ctx context.Context, conversationID string) error {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`, conversationID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check conversation: %w", err)
	}
	if exists {
		return model.ErrNotParticipant
	}
	return model.ErrNotFound
}

func (r *ChatRepository) ListMessages(ctx context.Context, conversationID string, cursor model.MessageCursor) ([]model.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT NULLIF($3, 0)
	`, conversationID, cursor.AfterSeq, cursor.Limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(msgs) == 0 {
		if _, err := r.Get(ctx, conversationID); err != nil {
			return nil, err
		}
		return []model.Message{}, nil
	}
	return msgs, nil
}

// MarkRead locks the conversation row first so messages appended concurrently
// are either flipped here or counted as unread afterwards, never lost.
func (r *ChatRepository) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin mark read: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var participantA, participantB string
	err = tx.QueryRow(ctx, `
		SELECT participant_a, participant_b FROM conversations WHERE id = $1 FOR UPDATE
	`, conversationID).Scan(&participantA, &participantB)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, model.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock conversation: %w", err)
	}
	if readerID != participantA && readerID != participantB {
		return 0, model.ErrNotParticipant
	}

	tag, err := tx.Exec(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE conversation_id = $1 AND receiver_id = $2 AND NOT is_read
	`, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("flip messages: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations SET
			unread_a = CASE WHEN participant_a = $2 THEN 0 ELSE unread_a END,
			unread_b = CASE WHEN participant_b = $2 THEN 0 ELSE unread_b END
		WHERE id = $1
	`, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("reset unread: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit mark read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ChatRepository) ListFor(ctx context.Context, userID string) ([]model.Conversation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE (participant_a = $1 OR participant_b = $1) AND message_count > 0
		ORDER BY last_message_at DESC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, *c)
	}
	return convs, rows.Err()
}
