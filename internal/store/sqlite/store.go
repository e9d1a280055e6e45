// Package sqlite provides the SQLite-backed durable store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mossy-p/chat-relay/internal/models"
	"github.com/mossy-p/chat-relay/internal/store"
	"github.com/mossy-p/chat-relay/internal/store/sqlite/migrations"
	"github.com/samber/lo"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists users, conversations and messages in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var _ store.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	dsn := cleanPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) CreateUser(ctx context.Context, username, passwordHash string, displayName *string) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.User{}, fmt.Errorf("username is required")
	}
	user := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    fromMillis(toMillis(s.now())),
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (id, username, display_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Username, displayName, passwordHash, toMillis(user.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, store.ErrAlreadyExists
		}
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

const userColumns = `id, username, display_name, password_hash, created_at`

func (s *Store) FindUserByID(ctx context.Context, id string) (models.User, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (models.User, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, strings.TrimSpace(username))
	return scanUser(row)
}

// SearchUsers matches query case-insensitively against username and display
// name. An empty query lists users ordered by username.
func (s *Store) SearchUsers(ctx context.Context, excludeID, query string, limit int) ([]models.User, error) {
	if limit <= 0 {
		limit = 20
	}
	query = strings.TrimSpace(query)
	var (
		rows *sql.Rows
		err  error
	)
	if query == "" {
		rows, err = s.sqlDB.QueryContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE id <> ? ORDER BY username ASC LIMIT ?`,
			excludeID, limit)
	} else {
		pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
		rows, err = s.sqlDB.QueryContext(ctx,
			`SELECT `+userColumns+` FROM users
			 WHERE id <> ?
			   AND (lower(username) LIKE ? ESCAPE '\' OR lower(coalesce(display_name, '')) LIKE ? ESCAPE '\')
			 ORDER BY username ASC LIMIT ?`,
			excludeID, pattern, pattern, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return users, nil
}

// CreateConversation creates a conversation with the given members. It is a
// group conversation when it has more than two distinct members.
func (s *Store) CreateConversation(ctx context.Context, memberIDs []string) (models.Conversation, error) {
	members := lo.Uniq(lo.Compact(memberIDs))
	if len(members) < 2 {
		return models.Conversation{}, fmt.Errorf("at least two distinct members are required")
	}
	now := fromMillis(toMillis(s.now()))
	conv := models.Conversation{
		ID:        uuid.NewString(),
		IsGroup:   len(members) > 2,
		CreatedAt: now,
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("begin create conversation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, is_group, created_at) VALUES (?, ?, ?)`,
		conv.ID, conv.IsGroup, toMillis(now),
	); err != nil {
		return models.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	for _, userID := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_members (conversation_id, user_id, joined_at) VALUES (?, ?, ?)`,
			conv.ID, userID, toMillis(now),
		); err != nil {
			return models.Conversation{}, fmt.Errorf("add conversation member %s: %w", userID, err)
		}
		conv.Members = append(conv.Members, models.ConversationMember{
			ConversationID: conv.ID,
			UserID:         userID,
			JoinedAt:       now,
		})
	}
	if err := tx.Commit(); err != nil {
		return models.Conversation{}, fmt.Errorf("commit create conversation: %w", err)
	}
	return conv, nil
}

// FindDirectConversation returns the oldest non-group conversation that has
// both a and b as members.
func (s *Store) FindDirectConversation(ctx context.Context, a, b string) (models.Conversation, error) {
	var (
		conv    models.Conversation
		created int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT c.id, c.is_group, c.created_at FROM conversations c
		 WHERE c.is_group = 0
		   AND EXISTS (SELECT 1 FROM conversation_members m WHERE m.conversation_id = c.id AND m.user_id = ?)
		   AND EXISTS (SELECT 1 FROM conversation_members m WHERE m.conversation_id = c.id AND m.user_id = ?)
		 ORDER BY c.created_at ASC LIMIT 1`,
		a, b,
	).Scan(&conv.ID, &conv.IsGroup, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, store.ErrNotFound
	}
	if err != nil {
		return models.Conversation{}, fmt.Errorf("find direct conversation: %w", err)
	}
	conv.CreatedAt = fromMillis(created)
	if conv.Members, err = s.listMembers(ctx, conv.ID); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

func (s *Store) listMembers(ctx context.Context, conversationID string) ([]models.ConversationMember, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT conversation_id, user_id, joined_at FROM conversation_members
		 WHERE conversation_id = ? ORDER BY joined_at ASC, user_id ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []models.ConversationMember
	for rows.Next() {
		var (
			m      models.ConversationMember
			joined int64
		)
		if err := rows.Scan(&m.ConversationID, &m.UserID, &joined); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.JoinedAt = fromMillis(joined)
		members = append(members, m)
	}
	return members, rows.Err()
}

// IsMember answers whether userID belongs to conversationID.
func (s *Store) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	var found int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT 1 FROM conversation_members WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return true, nil
}

func (s *Store) CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	if in.ConversationID == "" || in.SenderID == "" {
		return models.Message{}, fmt.Errorf("conversation id and sender id are required")
	}
	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Type:           in.Kind,
		Text:           in.Text,
		MediaURL:       in.MediaURL,
		DurationMs:     in.DurationMs,
		CreatedAt:      fromMillis(toMillis(s.now())),
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, type, text, media_url, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.SenderID, string(msg.Type), msg.Text, msg.MediaURL, msg.DurationMs,
		toMillis(msg.CreatedAt),
	)
	if err != nil {
		return models.Message{}, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

// ListMessages returns a conversation's messages in creation order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, conversation_id, sender_id, type, text, media_url, duration_ms, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, seq ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var (
			m        models.Message
			kind     string
			text     sql.NullString
			mediaURL sql.NullString
			duration sql.NullInt64
			created  int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &kind, &text, &mediaURL, &duration, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Type = models.MessageKind(kind)
		if text.Valid {
			m.Text = lo.ToPtr(text.String)
		}
		if mediaURL.Valid {
			m.MediaURL = lo.ToPtr(mediaURL.String)
		}
		if duration.Valid {
			m.DurationMs = lo.ToPtr(duration.Int64)
		}
		m.CreatedAt = fromMillis(created)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (models.User, error) {
	var (
		u           models.User
		displayName sql.NullString
		created     int64
	)
	err := row.Scan(&u.ID, &u.Username, &displayName, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, store.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("scan user: %w", err)
	}
	if displayName.Valid {
		u.DisplayName = lo.ToPtr(displayName.String)
	}
	u.CreatedAt = fromMillis(created)
	return u, nil
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
