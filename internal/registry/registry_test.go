package registry

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/randutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func stacked(cards string) *deck.Shoe {
	return deck.NewStackedShoe(randutil.New(7), deck.MustParseCards(cards)...)
}

func TestCreateAndLookup(t *testing.T) {
	r := New(quartz.NewMock(t), testLogger())

	table, err := r.Create("chat-1", "alice", game.Options{})
	require.NoError(t, err)
	assert.Equal(t, "chat-1", table.ChatID())
	assert.Equal(t, "alice", table.Host())

	got, ok := r.Get("chat-1")
	require.True(t, ok)
	assert.Same(t, table, got)

	_, err = r.Create("chat-1", "bob", game.Options{})
	assert.ErrorIs(t, err, ErrTableExists)

	_, err = r.Create("chat-2", "alice", game.Options{})
	assert.ErrorIs(t, err, ErrPlayerBusy, "host is busy at chat-1")

	chat, ok := r.FindTableForPlayer("alice")
	require.True(t, ok)
	assert.Equal(t, "chat-1", chat)
	assert.Equal(t, []string{"chat-1"}, r.Waiting())
}

func TestTrackAndRemove(t *testing.T) {
	r := New(quartz.NewMock(t), testLogger())
	_, err := r.Create("chat-1", "alice", game.Options{})
	require.NoError(t, err)
	_, err = r.Create("chat-2", "bob", game.Options{})
	require.NoError(t, err)

	require.NoError(t, r.Track("carol", "chat-1"))
	require.NoError(t, r.Track("carol", "chat-1"), "tracking twice at the same table is fine")
	assert.ErrorIs(t, r.Track("carol", "chat-2"), ErrPlayerBusy)
	assert.ErrorIs(t, r.Track("dave", "chat-9"), ErrTableNotFound)

	r.Untrack("carol", "chat-2")
	_, ok := r.FindTableForPlayer("carol")
	assert.True(t, ok, "untrack from the wrong chat is ignored")

	_, ok = r.Remove("chat-1")
	require.True(t, ok)
	_, ok = r.FindTableForPlayer("carol")
	assert.False(t, ok)
	_, ok = r.FindTableForPlayer("alice")
	assert.False(t, ok)
	_, ok = r.FindTableForPlayer("bob")
	assert.True(t, ok)

	_, ok = r.Remove("chat-1")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestSweepTimeouts(t *testing.T) {
	clock := quartz.NewMock(t)
	r := New(clock, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// alice 2s 3d, bob 9c 8s, dealer Th 7c
	table, err := r.Create("chat-1", "alice", game.Options{Shoe: stacked("2s 9c Th 3d 8s 7c")})
	require.NoError(t, err)
	require.True(t, table.AddPlayer("alice", 10))
	require.True(t, table.AddPlayer("bob", 10))
	require.True(t, table.Start())
	r.MarkStarted("chat-1")

	idle, err := r.Create("chat-2", "carol", game.Options{})
	require.NoError(t, err)
	require.True(t, idle.AddPlayer("carol", 10))

	clock.Advance(29 * time.Second).MustWait(ctx)
	assert.Empty(t, r.SweepTimeouts())

	clock.Advance(2 * time.Second).MustWait(ctx)
	assert.Equal(t, []string{"chat-1"}, r.SweepTimeouts())
	assert.Equal(t, 1, table.TurnPointer())
	current, _ := table.CurrentPlayer()
	assert.Equal(t, "bob", current)
	assert.Equal(t, game.HandStand, table.Hands("alice")[0].Status)

	assert.Empty(t, r.SweepTimeouts(), "bob's clock restarted")

	clock.Advance(31 * time.Second).MustWait(ctx)
	assert.Equal(t, []string{"chat-1"}, r.SweepTimeouts())
	assert.Equal(t, game.StatusFinished, table.Status())

	finished := r.Finished()
	require.Len(t, finished, 1)
	assert.Same(t, table, finished[0])
	assert.Equal(t, game.StatusWaiting, idle.Status(), "waiting tables are not swept for turns")
}

func TestSweepWaitRoom(t *testing.T) {
	clock := quartz.NewMock(t)
	r := New(clock, testLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stale, err := r.Create("chat-1", "alice", game.Options{})
	require.NoError(t, err)
	require.True(t, stale.AddPlayer("alice", 100))
	require.NoError(t, r.Track("bob", "chat-1"))
	require.True(t, stale.AddPlayer("bob", 40))

	clock.Advance(200 * time.Second).MustWait(ctx)

	fresh, err := r.Create("chat-2", "carol", game.Options{})
	require.NoError(t, err)
	require.True(t, fresh.AddPlayer("carol", 10))

	started, err := r.Create("chat-3", "dave", game.Options{Shoe: stacked("9s 8c 7h 6d")})
	require.NoError(t, err)
	require.True(t, started.AddPlayer("dave", 10))
	require.True(t, started.Start())
	r.MarkStarted("chat-3")

	clock.Advance(101 * time.Second).MustWait(ctx)

	expired := r.ExpireWaitRoom()
	require.Len(t, expired, 1)
	assert.Equal(t, "chat-1", expired[0].ChatID)
	assert.Equal(t, map[string]int64{"alice": 100, "bob": 40}, expired[0].Refunds)
	assert.True(t, stale.Cancelled())

	_, ok := r.Get("chat-1")
	assert.False(t, ok)
	_, ok = r.FindTableForPlayer("bob")
	assert.False(t, ok)

	_, ok = r.Get("chat-2")
	assert.True(t, ok)
	_, ok = r.Get("chat-3")
	assert.True(t, ok)

	clock.Advance(200 * time.Second).MustWait(ctx)
	assert.Equal(t, []string{"chat-2"}, r.SweepWaitRoom())
	assert.Equal(t, []string{}, r.Waiting())
}
