package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trendlens/admin-api/internal/model"
	"github.com/trendlens/admin-api/internal/telegram"
	apperrors "github.com/trendlens/admin-api/pkg/errors"
	"github.com/trendlens/admin-api/pkg/logger"
)

type fakeConnManager struct {
	credentials map[string]string // credential -> userID
	byDest      map[string]*model.Connection
	muteCalls   []string
	disconnects []string
}

func newFakeConnManager() *fakeConnManager {
	return &fakeConnManager{
		credentials: make(map[string]string),
		byDest:      make(map[string]*model.Connection),
	}
}

func (f *fakeConnManager) RedeemCredential(ctx context.Context, credential, destinationID, username string) (*model.Connection, error) {
	userID, ok := f.credentials[credential]
	if !ok {
		return nil, apperrors.ErrInvalidOrExpired
	}
	delete(f.credentials, credential)
	conn := &model.Connection{
		ID:            uuid.New(),
		UserID:        userID,
		DestinationID: destinationID,
		Username:      username,
		IsActive:      true,
	}
	f.byDest[destinationID] = conn
	return conn, nil
}

func (f *fakeConnManager) ByDestination(ctx context.Context, destinationID string) (*model.Connection, error) {
	conn, ok := f.byDest[destinationID]
	if !ok {
		return nil, apperrors.NewNotFound("connection", nil)
	}
	return conn, nil
}

func (f *fakeConnManager) Disconnect(ctx context.Context, userID string) error {
	f.disconnects = append(f.disconnects, userID)
	for _, conn := range f.byDest {
		if conn.UserID == userID {
			conn.IsActive = false
		}
	}
	return nil
}

func (f *fakeConnManager) SetMuted(ctx context.Context, userID string, t *model.AlertType, muted bool) error {
	key := userID + ":all"
	if t != nil {
		key = userID + ":" + string(*t)
	}
	if muted {
		key += ":muted"
	} else {
		key += ":unmuted"
	}
	f.muteCalls = append(f.muteCalls, key)
	return nil
}

type fakeReplier struct {
	replies map[string][]string
}

func newFakeReplier() *fakeReplier {
	return &fakeReplier{replies: make(map[string][]string)}
}

func (f *fakeReplier) Send(ctx context.Context, destination, text string) error {
	f.replies[destination] = append(f.replies[destination], text)
	return nil
}

func (f *fakeReplier) last(destination string) string {
	msgs := f.replies[destination]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

type staticSource struct {
	updates []telegram.Update
}

func (s *staticSource) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error) {
	return s.updates, nil
}

func commandUpdate(id int64, chatID int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: id,
		Message: &telegram.Message{
			MessageID: id,
			Text:      text,
			From:      &telegram.User{ID: chatID, Username: "alice_tg"},
			Chat:      telegram.Chat{ID: chatID},
		},
	}
}

func newPollerFixture() (*BotPoller, *fakeConnManager, *fakeReplier) {
	conns := newFakeConnManager()
	replier := newFakeReplier()
	poller := NewBotPoller(&staticSource{}, replier, conns, BotPollerConfig{}, logger.Nop(), nil)
	return poller, conns, replier
}

func TestStartWithTokenPayloadLinksChat(t *testing.T) {
	poller, conns, replier := newPollerFixture()
	conns.credentials["abc123"] = "user-1"

	poller.ProcessBatch(context.Background(), []telegram.Update{
		commandUpdate(1, 5551234, "/start link_abc123"),
	})

	conn, err := conns.ByDestination(context.Background(), "5551234")
	require.NoError(t, err)
	assert.Equal(t, "user-1", conn.UserID)
	assert.Equal(t, "alice_tg", conn.Username)
	assert.Contains(t, replier.last("5551234"), "Connected")
}

func TestStartWithoutPayloadGreets(t *testing.T) {
	poller, _, replier := newPollerFixture()

	poller.ProcessBatch(context.Background(), []telegram.Update{
		commandUpdate(1, 5551234, "/start"),
	})

	assert.Contains(t, replier.last("5551234"), "/link")
}

func TestLinkCommandRedeemsShortCode(t *testing.T) {
	poller, conns, replier := newPollerFixture()
	conns.credentials["482913"] = "user-1"

	poller.ProcessBatch(context.Background(), []telegram.Update{
		commandUpdate(1, 5551234, "/link 482913"),
	})

	_, err := conns.ByDestination(context.Background(), "5551234")
	require.NoError(t, err)
	assert.Contains(t, replier.last("5551234"), "Connected")
}

func TestLinkWithBadCredentialReplies(t *testing.T) {
	poller, _, replier := newPollerFixture()

	poller.ProcessBatch(context.Background(), []telegram.Update{
		commandUpdate(1, 5551234, "/link 000000"),
	})

	assert.Contains(t, replier.last("5551234"), "invalid or has expired")
}

func TestLinkWithoutCodeShowsUsage(t *testing.T) {
	poller, _, replier := newPollerFixture()

	poller.ProcessBatch(context.Background(), []telegram.Update{
		commandUpdate(1, 5551234, "/link"),
	})

	assert.Equal(t, "Usage: /link <code>", replier.last("5551234"))
}

func TestStatusUnconnectedChat(t *testing.T) {
	poller, _, replier := newPollerFixture()

	poller.ProcessBatch(context.Background(), []telegram.Update{
		commandUpdate(1, 5551234, "/status"),
	})

	assert.Contains(t, replier.last("5551234"), "not connected")
}

func TestStatusListsTypesWithoutTest(t *testing.T) {
	poller, conns, replier := newPollerFixture()
	conns.credentials["abc123"] = "user-1"

	ctx := context.Background()
	poller.ProcessBatch(ctx, []telegram.Update{
		commandUpdate(1, 5551234, "/start link_abc123"),
		commandUpdate(2, 5551234, "/status"),
	})

	status := replier.last("5551234")
	assert.Contains(t, status, "Connected")
	assert.Contains(t, status, "EARLY_BREAKOUT: on")
	assert.NotContains(t, status, "TEST")
}

func TestStopDisconnects(t *testing.T) {
	poller, conns, replier := newPollerFixture()
	conns.credentials["abc123"] = "user-1"

	poller.ProcessBatch(context.Background(), []telegram.Update{
		commandUpdate(1, 5551234, "/start link_abc123"),
		commandUpdate(2, 5551234, "/stop"),
	})

	assert.Equal(t, []string{"user-1"}, conns.disconnects)
	assert.Contains(t, replier.last("5551234"), "Disconnected")
}

func TestMuteAndUnmute(t *testing.T) {
	poller, conns, replier := newPollerFixture()
	conns.credentials["abc123"] = "user-1"

	poller.ProcessBatch(context.Background(), []telegram.Update{
		commandUpdate(1, 5551234, "/start link_abc123"),
		commandUpdate(2, 5551234, "/mute"),
		commandUpdate(3, 5551234, "/mute trend_reversal"),
		commandUpdate(4, 5551234, "/unmute"),
	})

	assert.Equal(t, []string{
		"user-1:all:muted",
		"user-1:TREND_REVERSAL:muted",
		"user-1:all:unmuted",
	}, conns.muteCalls)
	assert.Contains(t, replier.last("5551234"), "resumed")
}

func TestMuteUnknownTypeReplies(t *testing.T) {
	poller, conns, replier := newPollerFixture()
	conns.credentials["abc123"] = "user-1"

	poller.ProcessBatch(context.Background(), []telegram.Update{
		commandUpdate(1, 5551234, "/start link_abc123"),
		commandUpdate(2, 5551234, "/mute everything"),
	})

	assert.Contains(t, replier.last("5551234"), "Unknown alert type")
	assert.Empty(t, conns.muteCalls)
}

func TestOffsetAdvancesPastBatch(t *testing.T) {
	poller, _, _ := newPollerFixture()

	poller.ProcessBatch(context.Background(), []telegram.Update{
		commandUpdate(10, 5551234, "/help"),
		commandUpdate(11, 5551234, "not a command"),
		{UpdateID: 12}, // no message at all
	})

	assert.Equal(t, int64(13), poller.offset)
}

func TestNonCommandTextIgnored(t *testing.T) {
	poller, _, replier := newPollerFixture()

	poller.ProcessBatch(context.Background(), []telegram.Update{
		commandUpdate(1, 5551234, "hello there"),
	})

	assert.Empty(t, replier.replies)
}

func TestUnknownCommandIgnored(t *testing.T) {
	poller, _, replier := newPollerFixture()

	poller.ProcessBatch(context.Background(), []telegram.Update{
		commandUpdate(1, 5551234, "/frobnicate now"),
	})

	assert.Empty(t, replier.replies)
}

func TestGroupSuffixStripped(t *testing.T) {
	poller, _, replier := newPollerFixture()

	poller.ProcessBatch(context.Background(), []telegram.Update{
		commandUpdate(1, 5551234, "/help@trendlens_bot"),
	})

	assert.Contains(t, replier.last("5551234"), "Commands:")
}
