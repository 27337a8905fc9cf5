// Package registry tracks the live blackjack tables of a process, keyed by
// the chat they were opened in, and runs the timeout sweeps that keep
// stalled tables moving.
package registry

import (
	"errors"
	"io"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/blackjack/internal/game"
)

var (
	ErrTableExists   = errors.New("chat already has a table")
	ErrTableNotFound = errors.New("table not found")
	ErrPlayerBusy    = errors.New("player is already in a game")
)

// Registry owns every live Table. Its lock guards only the maps; table state
// is protected by each Table's own lock and is never touched while the
// registry lock is held for more than a lookup.
type Registry struct {
	mu      sync.RWMutex
	tables  map[string]*game.Table
	waiting map[string]struct{}
	players map[string]string // player -> chat

	clock  quartz.Clock
	logger *log.Logger
}

// New creates an empty registry.
func New(clock quartz.Clock, logger *log.Logger) *Registry {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Registry{
		tables:  make(map[string]*game.Table),
		waiting: make(map[string]struct{}),
		players: make(map[string]string),
		clock:   clock,
		logger:  logger.WithPrefix("registry"),
	}
}

// Create opens a waiting table for chatID hosted by host. The host is
// tracked as busy but is not seated; the caller seats them with the stake
// they escrowed.
func (r *Registry) Create(chatID, host string, opts game.Options) (*game.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tables[chatID]; exists {
		return nil, ErrTableExists
	}
	if _, busy := r.players[host]; busy {
		return nil, ErrPlayerBusy
	}

	if opts.Clock == nil {
		opts.Clock = r.clock
	}
	if opts.Logger == nil {
		opts.Logger = r.logger
	}

	table := game.NewTable(chatID, host, opts)
	r.tables[chatID] = table
	r.waiting[chatID] = struct{}{}
	r.players[host] = chatID

	r.logger.Info("Table created", "chat", chatID, "table", table.ID(), "host", host)
	return table, nil
}

// Get returns the table for chatID.
func (r *Registry) Get(chatID string) (*game.Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[chatID]
	return t, ok
}

// Remove retires the table for chatID and releases all of its players.
func (r *Registry) Remove(chatID string) (*game.Table, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(chatID)
}

func (r *Registry) removeLocked(chatID string) (*game.Table, bool) {
	t, ok := r.tables[chatID]
	if !ok {
		return nil, false
	}
	delete(r.tables, chatID)
	delete(r.waiting, chatID)
	for player, chat := range r.players {
		if chat == chatID {
			delete(r.players, player)
		}
	}
	r.logger.Debug("Table retired", "chat", chatID, "table", t.ID())
	return t, true
}

// FindTableForPlayer returns the chat whose table player is part of.
func (r *Registry) FindTableForPlayer(player string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chatID, ok := r.players[player]
	return chatID, ok
}

// Track records that player is at the table in chatID. It fails if the
// player is already at another table or the table does not exist.
func (r *Registry) Track(player, chatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tables[chatID]; !ok {
		return ErrTableNotFound
	}
	if current, busy := r.players[player]; busy && current != chatID {
		return ErrPlayerBusy
	}
	r.players[player] = chatID
	return nil
}

// Untrack releases player from chatID's table.
func (r *Registry) Untrack(player, chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.players[player] == chatID {
		delete(r.players, player)
	}
}

// MarkStarted drops chatID from the wait room.
func (r *Registry) MarkStarted(chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.waiting, chatID)
}

// Waiting returns the chats whose tables have not started, sorted.
func (r *Registry) Waiting() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chats := make([]string, 0, len(r.waiting))
	for chatID := range r.waiting {
		chats = append(chats, chatID)
	}
	slices.Sort(chats)
	return chats
}

// List returns every live table ordered by chat.
func (r *Registry) List() []*game.Table {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chats := make([]string, 0, len(r.tables))
	for chatID := range r.tables {
		chats = append(chats, chatID)
	}
	slices.Sort(chats)

	list := make([]*game.Table, 0, len(chats))
	for _, chatID := range chats {
		list = append(list, r.tables[chatID])
	}
	return list
}

// Len returns the number of live tables.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tables)
}
