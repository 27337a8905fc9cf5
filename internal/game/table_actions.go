package game

import (
	"slices"
	"time"
)

// AddPlayer seats player with bet. It fails if the table is not waiting,
// the player already joined or the table is full.
func (t *Table) AddPlayer(player string, bet int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusWaiting || bet < 0 {
		return false
	}
	if _, exists := t.playerBets[player]; exists {
		return false
	}
	if len(t.players) >= t.maxPlayers {
		return false
	}

	h := newHand(t.allocHandID(), player, bet)
	t.hands[h.ID] = h
	t.playerHands[player] = []HandID{h.ID}
	t.playerBets[player] = bet
	t.players = append(t.players, player)

	t.logger.Debug("Player joined", "player", player, "bet", bet, "players", len(t.players))
	return true
}

// RemovePlayer removes a player from a waiting table and returns the stake
// they had placed. The host cannot leave; they cancel instead.
func (t *Table) RemovePlayer(player string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusWaiting || player == t.host {
		return 0, false
	}
	bet, exists := t.playerBets[player]
	if !exists {
		return 0, false
	}

	for _, id := range t.playerHands[player] {
		delete(t.hands, id)
	}
	delete(t.playerHands, player)
	delete(t.playerBets, player)
	t.players = slices.DeleteFunc(t.players, func(p string) bool { return p == player })

	t.logger.Debug("Player left", "player", player, "players", len(t.players))
	return bet, true
}

// Cancel moves a waiting table straight to finished and returns every stake
// so the caller can refund it.
func (t *Table) Cancel() (map[string]int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusWaiting {
		return nil, false
	}

	refunds := make(map[string]int64, len(t.playerBets))
	for player, bet := range t.playerBets {
		refunds[player] = bet
	}
	t.status = StatusFinished
	t.cancelled = true

	t.logger.Debug("Table cancelled", "players", len(t.players))
	return refunds, true
}

// Start deals the round. It fails unless the table is waiting with at least
// one player. Natural blackjacks are marked immediately; if every player has
// one the round resolves without a turn loop.
func (t *Table) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusWaiting || len(t.players) == 0 {
		return false
	}

	t.shoe.Shuffle()

	for round := 0; round < 2; round++ {
		for _, player := range t.players {
			t.hands[t.playerHands[player][0]].AddCard(t.shoe.Draw())
		}
		t.dealer.AddCard(t.shoe.Draw())
	}

	t.turnOrder = make([]Seat, 0, len(t.players))
	for _, player := range t.players {
		h := t.hands[t.playerHands[player][0]]
		if h.IsBlackjack() {
			h.Status = HandBlackjack
		}
		t.turnOrder = append(t.turnOrder, Seat{Player: player, Hand: h.ID})
	}

	t.turnPointer = 0
	t.status = StatusPlaying
	t.lastActionAt = t.clock.Now()

	t.logger.Info("Round started", "players", len(t.players), "dealerUp", t.dealer.Cards[0])
	t.skipInactive()
	return true
}

// Hit draws a card for player's current hand. A bust ends the hand and
// advances the turn; otherwise the same player keeps the turn.
func (t *Table) Hit(player string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.handOnTurn(player)
	if h == nil {
		return false
	}

	card := t.shoe.Draw()
	h.AddCard(card)
	t.lastActionAt = t.clock.Now()
	t.logger.Debug("Hit", "player", player, "hand", h.ID, "card", card, "value", h.Value())

	if h.IsBust() {
		h.Status = HandBust
		t.advanceTurn()
	}
	return true
}

// Stand ends player's current hand and advances the turn.
func (t *Table) Stand(player string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.handOnTurn(player)
	if h == nil {
		return false
	}

	h.Status = HandStand
	t.lastActionAt = t.clock.Now()
	t.logger.Debug("Stand", "player", player, "hand", h.ID, "value", h.Value())
	t.advanceTurn()
	return true
}

// CanSplit reports whether player is on turn with a splittable hand.
func (t *Table) CanSplit(player string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.handOnTurn(player)
	return h != nil && h.CanSplit()
}

// Split turns player's current pair into two hands carrying the same bet.
// The new hand is seated immediately after the current one so it is played
// next. Moving the matching stake is the caller's job.
func (t *Table) Split(player string) (*Hand, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.handOnTurn(player)
	if h == nil || !h.CanSplit() {
		return nil, false
	}

	second := newHand(t.allocHandID(), player, h.Bet)
	second.FromSplit = true
	second.AddCard(h.Cards[1])
	h.Cards = h.Cards[:1]
	h.FromSplit = true

	h.AddCard(t.shoe.Draw())
	second.AddCard(t.shoe.Draw())

	t.hands[second.ID] = second
	t.playerHands[player] = append(t.playerHands[player], second.ID)
	t.playerBets[player] += second.Bet
	t.turnOrder = slices.Insert(t.turnOrder, t.turnPointer+1, Seat{Player: player, Hand: second.ID})
	t.lastActionAt = t.clock.Now()

	t.logger.Debug("Split", "player", player, "hand", h.ID, "newHand", second.ID, "bet", second.Bet)
	return second.clone(), true
}

// ForceStand stands the current hand on its owner's behalf and advances the
// turn exactly once. It is used by the timeout sweep and reports the player
// that was stood.
func (t *Table) ForceStand() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.forceStand()
}

// ForceStandIfExpired is ForceStand guarded by the turn timeout. The expiry
// check and the stand happen under one lock, so a player who acts just
// before the sweep never costs the next player their turn.
func (t *Table) ForceStandIfExpired(now time.Time) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.turnExpired(now) {
		return "", false
	}
	return t.forceStand()
}

func (t *Table) forceStand() (string, bool) {
	h := t.currentHand()
	if h == nil || h.Status != HandPlaying {
		return "", false
	}

	h.Status = HandStand
	t.lastActionAt = t.clock.Now()
	t.logger.Info("Turn timed out, standing", "player", h.Player, "hand", h.ID, "value", h.Value())
	t.advanceTurn()
	return h.Player, true
}

// advanceTurn moves past the current seat. Callers hold t.mu.
func (t *Table) advanceTurn() bool {
	t.turnPointer++
	return t.skipInactive()
}

// skipInactive moves the pointer forward over hands that can no longer act
// and resolves the round once the turn order is exhausted. It reports
// whether the round ended.
func (t *Table) skipInactive() bool {
	for t.turnPointer < len(t.turnOrder) {
		if t.hands[t.turnOrder[t.turnPointer].Hand].Status == HandPlaying {
			return false
		}
		t.turnPointer++
	}
	t.finish()
	return true
}

func (t *Table) finish() {
	for t.dealer.Value() < DealerStandsOn {
		t.dealer.AddCard(t.shoe.Draw())
	}
	dealerValue := t.dealer.Value()
	dealerBust := dealerValue > 21

	t.results = make([]Result, 0, len(t.turnOrder))
	for _, seat := range t.turnOrder {
		h := t.hands[seat.Hand]
		outcome := resolve(h, dealerValue, dealerBust)
		if h.Status != HandBust {
			h.Status = outcome
		}
		t.results = append(t.results, Result{
			Player:  h.Player,
			Hand:    h.ID,
			Stake:   h.Bet,
			Outcome: outcome,
			Value:   h.Value(),
		})
	}

	t.status = StatusFinished
	t.lastActionAt = t.clock.Now()
	t.logger.Info("Round finished", "dealer", dealerValue, "hands", len(t.results))
}

// resolve decides one hand against the dealer's final total.
func resolve(h *Hand, dealerValue int, dealerBust bool) HandStatus {
	switch {
	case h.Status == HandBust:
		return HandLose
	case h.Status == HandBlackjack:
		return HandBlackjack
	case dealerBust:
		return HandWin
	case h.Value() > dealerValue:
		return HandWin
	case h.Value() == dealerValue:
		return HandPush
	default:
		return HandLose
	}
}
