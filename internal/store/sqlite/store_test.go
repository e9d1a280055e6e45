package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mossy-p/chat-relay/internal/models"
	"github.com/mossy-p/chat-relay/internal/store"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustUser(t *testing.T, s *Store, username string) models.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), username, "hash", nil)
	require.NoError(t, err)
	return u
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), " ")
	require.Error(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "chat.db")

	first, err := Open(context.Background(), path)
	req.NoError(err)
	mustUser(t, first, "alice")
	req.NoError(first.Close())

	second, err := Open(context.Background(), path)
	req.NoError(err)
	defer second.Close()
	u, err := second.FindUserByUsername(context.Background(), "alice")
	req.NoError(err)
	req.Equal("alice", u.Username)
}

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	req := require.New(t)
	s := openTempStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, "alice", "hash", lo.ToPtr("Alice"))
	req.NoError(err)
	req.NotEmpty(created.ID)

	_, err = s.CreateUser(ctx, "alice", "other", nil)
	req.ErrorIs(err, store.ErrAlreadyExists)

	found, err := s.FindUserByID(ctx, created.ID)
	req.NoError(err)
	req.Equal("hash", found.PasswordHash)
	req.Equal("Alice", *found.DisplayName)

	_, err = s.FindUserByID(ctx, "missing")
	req.ErrorIs(err, store.ErrNotFound)
}

func TestSearchUsers(t *testing.T) {
	req := require.New(t)
	s := openTempStore(t)
	ctx := context.Background()

	me := mustUser(t, s, "me")
	_, err := s.CreateUser(ctx, "bob", "hash", lo.ToPtr("Robert Smith"))
	req.NoError(err)
	mustUser(t, s, "carol")
	mustUser(t, s, "under_score")

	all, err := s.SearchUsers(ctx, me.ID, "", 20)
	req.NoError(err)
	req.Equal([]string{"bob", "carol", "under_score"}, lo.Map(all, func(u models.User, _ int) string { return u.Username }))

	byDisplay, err := s.SearchUsers(ctx, me.ID, "SMITH", 20)
	req.NoError(err)
	req.Len(byDisplay, 1)
	req.Equal("bob", byDisplay[0].Username)

	literal, err := s.SearchUsers(ctx, me.ID, "_", 20)
	req.NoError(err)
	req.Len(literal, 1)
	req.Equal("under_score", literal[0].Username)

	limited, err := s.SearchUsers(ctx, me.ID, "", 2)
	req.NoError(err)
	req.Len(limited, 2)
}

func TestConversationMembership(t *testing.T) {
	req := require.New(t)
	s := openTempStore(t)
	ctx := context.Background()
	a, b, c := mustUser(t, s, "a"), mustUser(t, s, "b"), mustUser(t, s, "c")

	direct, err := s.CreateConversation(ctx, []string{a.ID, b.ID, a.ID})
	req.NoError(err)
	req.False(direct.IsGroup)
	req.Len(direct.Members, 2)

	group, err := s.CreateConversation(ctx, []string{a.ID, b.ID, c.ID})
	req.NoError(err)
	req.True(group.IsGroup)

	ok, err := s.IsMember(ctx, direct.ID, a.ID)
	req.NoError(err)
	req.True(ok)
	ok, err = s.IsMember(ctx, direct.ID, c.ID)
	req.NoError(err)
	req.False(ok)

	found, err := s.FindDirectConversation(ctx, b.ID, a.ID)
	req.NoError(err)
	req.Equal(direct.ID, found.ID)
	req.Len(found.Members, 2)

	_, err = s.FindDirectConversation(ctx, a.ID, c.ID)
	req.ErrorIs(err, store.ErrNotFound)

	_, err = s.CreateConversation(ctx, []string{a.ID})
	req.Error(err)
	_, err = s.CreateConversation(ctx, []string{a.ID, "ghost"})
	req.Error(err)
}

func TestMessagesListInCreationOrder(t *testing.T) {
	req := require.New(t)
	s := openTempStore(t)
	ctx := context.Background()
	a, b := mustUser(t, s, "a"), mustUser(t, s, "b")
	conv, err := s.CreateConversation(ctx, []string{a.ID, b.ID})
	req.NoError(err)

	fixed := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	for i := 0; i < 3; i++ {
		_, err := s.CreateMessage(ctx, models.NewMessage{
			ConversationID: conv.ID,
			SenderID:       a.ID,
			Kind:           models.KindText,
			Text:           lo.ToPtr(fmt.Sprintf("m%d", i)),
		})
		req.NoError(err)
	}
	s.now = func() time.Time { return fixed.Add(-time.Minute) }
	audio, err := s.CreateMessage(ctx, models.NewMessage{
		ConversationID: conv.ID,
		SenderID:       b.ID,
		Kind:           models.KindAudio,
		MediaURL:       lo.ToPtr("/uploads/a_1.webm"),
		DurationMs:     lo.ToPtr(int64(1500)),
	})
	req.NoError(err)

	messages, err := s.ListMessages(ctx, conv.ID)
	req.NoError(err)
	req.Len(messages, 4)
	req.Equal(audio.ID, messages[0].ID)
	req.Equal(int64(1500), *messages[0].DurationMs)
	req.Nil(messages[0].Text)
	req.Equal([]string{"m0", "m1", "m2"}, lo.Map(messages[1:], func(m models.Message, _ int) string { return *m.Text }))

	empty, err := s.ListMessages(ctx, "nope")
	req.NoError(err)
	req.Empty(empty)
}

func TestCreateMessageRejectsUnknownSender(t *testing.T) {
	req := require.New(t)
	s := openTempStore(t)
	ctx := context.Background()
	a, b := mustUser(t, s, "a"), mustUser(t, s, "b")
	conv, err := s.CreateConversation(ctx, []string{a.ID, b.ID})
	req.NoError(err)

	_, err = s.CreateMessage(ctx, models.NewMessage{
		ConversationID: conv.ID,
		SenderID:       "ghost",
		Kind:           models.KindText,
		Text:           lo.ToPtr("hi"),
	})
	req.Error(err)
}
