package game

import (
	"time"

	"github.com/lox/blackjack/internal/deck"
)

// Action is an intent a player can submit on their turn.
type Action string

const (
	ActionHit   Action = "hit"
	ActionStand Action = "stand"
	ActionSplit Action = "split"
)

// Snapshot is everything a presentation layer needs to render a table.
type Snapshot struct {
	TableID      string       `json:"tableId"`
	ChatID       string       `json:"chatId"`
	Host         string       `json:"host"`
	Status       Status       `json:"status"`
	Cancelled    bool         `json:"cancelled,omitempty"`
	Dealer       DealerView   `json:"dealer"`
	Players      []PlayerView `json:"players"`
	Turn         *TurnView    `json:"turn,omitempty"`
	Results      []Result     `json:"results,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	LastActionAt time.Time    `json:"lastActionAt"`
}

// DealerView shows the dealer's up card while the round is in play and the
// whole hand once it has finished.
type DealerView struct {
	Cards  []deck.Card `json:"cards"`
	Hidden int         `json:"hidden"`
	Value  int         `json:"value"`
}

type PlayerView struct {
	Player string     `json:"player"`
	Stake  int64      `json:"stake"`
	Hands  []HandView `json:"hands"`
}

type HandView struct {
	ID     HandID      `json:"id"`
	Cards  []deck.Card `json:"cards"`
	Bet    int64       `json:"bet"`
	Value  int         `json:"value"`
	Soft   bool        `json:"soft"`
	Status HandStatus  `json:"status"`
}

type TurnView struct {
	Player   string    `json:"player"`
	Hand     HandID    `json:"hand"`
	Actions  []Action  `json:"actions"`
	Deadline time.Time `json:"deadline"`
}

// Snapshot captures the table state under its lock.
func (t *Table) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		TableID:      t.id,
		ChatID:       t.chatID,
		Host:         t.host,
		Status:       t.status,
		Cancelled:    t.cancelled,
		Players:      make([]PlayerView, 0, len(t.players)),
		CreatedAt:    t.createdAt,
		LastActionAt: t.lastActionAt,
	}

	s.Dealer = t.dealerView()

	for _, player := range t.players {
		pv := PlayerView{Player: player, Stake: t.playerBets[player]}
		for _, id := range t.playerHands[player] {
			h := t.hands[id]
			pv.Hands = append(pv.Hands, HandView{
				ID:     h.ID,
				Cards:  append([]deck.Card(nil), h.Cards...),
				Bet:    h.Bet,
				Value:  h.Value(),
				Soft:   h.IsSoft(),
				Status: h.Status,
			})
		}
		s.Players = append(s.Players, pv)
	}

	if h := t.currentHand(); h != nil && h.Status == HandPlaying {
		actions := []Action{ActionHit, ActionStand}
		if h.CanSplit() {
			actions = append(actions, ActionSplit)
		}
		s.Turn = &TurnView{
			Player:   h.Player,
			Hand:     h.ID,
			Actions:  actions,
			Deadline: t.lastActionAt.Add(t.turnTimeout),
		}
	}

	if t.status == StatusFinished {
		s.Results = append([]Result(nil), t.results...)
	}
	return s
}

func (t *Table) dealerView() DealerView {
	switch {
	case len(t.dealer.Cards) == 0:
		return DealerView{Cards: []deck.Card{}}
	case t.status == StatusFinished:
		return DealerView{
			Cards: append([]deck.Card(nil), t.dealer.Cards...),
			Value: t.dealer.Value(),
		}
	default:
		up := t.dealer.Cards[0]
		return DealerView{
			Cards:  []deck.Card{up},
			Hidden: len(t.dealer.Cards) - 1,
			Value:  handValueOf(up),
		}
	}
}

func handValueOf(cards ...deck.Card) int {
	v, _ := handValue(cards)
	return v
}
