package registry

import (
	"github.com/lox/blackjack/internal/game"
)

// Expired is a waiting table removed by SweepWaitRoom together with the
// stakes that must be refunded.
type Expired struct {
	ChatID  string
	Table   *game.Table
	Refunds map[string]int64
}

// SweepTimeouts forces a stand on every playing table whose current turn has
// been idle past the turn timeout. Each affected table advances exactly one
// turn. It returns the affected chats; tables that finished as a result stay
// registered until the caller has settled and retired them.
func (r *Registry) SweepTimeouts() []string {
	now := r.clock.Now()

	var affected []string
	for _, t := range r.List() {
		player, ok := t.ForceStandIfExpired(now)
		if !ok {
			continue
		}
		r.logger.Info("Auto-stood expired turn", "chat", t.ChatID(), "player", player, "status", t.Status())
		affected = append(affected, t.ChatID())
	}
	return affected
}

// SweepWaitRoom cancels and removes every waiting table older than the wait
// timeout and returns their chat IDs.
func (r *Registry) SweepWaitRoom() []string {
	expired := r.ExpireWaitRoom()
	chats := make([]string, 0, len(expired))
	for _, e := range expired {
		chats = append(chats, e.ChatID)
	}
	return chats
}

// ExpireWaitRoom is SweepWaitRoom for callers that need the refunds owed to
// the players of each expired table.
func (r *Registry) ExpireWaitRoom() []Expired {
	now := r.clock.Now()

	var expired []Expired
	for _, chatID := range r.Waiting() {
		t, ok := r.Get(chatID)
		if !ok || !t.IsWaitExpired(now) {
			continue
		}
		refunds, ok := t.Cancel()
		if !ok {
			// Started between the listing and the cancel.
			continue
		}

		r.mu.Lock()
		if r.tables[chatID] == t {
			r.removeLocked(chatID)
		}
		r.mu.Unlock()

		r.logger.Info("Wait room expired", "chat", chatID, "table", t.ID(), "players", len(refunds))
		expired = append(expired, Expired{ChatID: chatID, Table: t, Refunds: refunds})
	}
	return expired
}

// Finished returns the tables that have reached the finished state and are
// waiting to be settled and retired.
func (r *Registry) Finished() []*game.Table {
	var finished []*game.Table
	for _, t := range r.List() {
		if t.Status() == game.StatusFinished {
			finished = append(finished, t)
		}
	}
	return finished
}
