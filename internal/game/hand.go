package game

import (
	"github.com/lox/blackjack/internal/deck"
)

// HandStatus is the lifecycle status of a Hand
type HandStatus string

const (
	HandPlaying   HandStatus = "playing"
	HandStand     HandStatus = "stand"
	HandBust      HandStatus = "bust"
	HandBlackjack HandStatus = "blackjack"
	HandWin       HandStatus = "win"
	HandLose      HandStatus = "lose"
	HandPush      HandStatus = "push"
)

// String returns the string representation of a hand status
func (s HandStatus) String() string {
	return string(s)
}

// HandID identifies a Hand within one Table. IDs are never reused.
type HandID int

// Hand is an ordered sequence of cards bound to a bet.
type Hand struct {
	ID        HandID
	Player    string
	Cards     []deck.Card
	Bet       int64
	Status    HandStatus
	FromSplit bool
}

func newHand(id HandID, player string, bet int64) *Hand {
	return &Hand{
		ID:     id,
		Player: player,
		Cards:  make([]deck.Card, 0, 4),
		Bet:    bet,
		Status: HandPlaying,
	}
}

// AddCard appends a card. The 21 check is the table's job.
func (h *Hand) AddCard(c deck.Card) {
	h.Cards = append(h.Cards, c)
}

// Value returns the best total for the hand. Every ace counts as 1, then a
// single ace is promoted to 11 if that does not bust the hand. Promoting a
// second ace would always add 20, so one promotion is the most that can
// ever apply.
func (h *Hand) Value() int {
	total, _ := handValue(h.Cards)
	return total
}

// IsSoft reports whether the value counts an ace as 11.
func (h *Hand) IsSoft() bool {
	_, soft := handValue(h.Cards)
	return soft
}

func handValue(cards []deck.Card) (int, bool) {
	total := 0
	aces := 0
	for _, c := range cards {
		total += c.Points()
		if c.IsAce() {
			aces++
		}
	}
	if aces > 0 && total+10 <= 21 {
		return total + 10, true
	}
	return total, false
}

// IsBust reports whether the hand's value exceeds 21.
func (h *Hand) IsBust() bool {
	return h.Value() > 21
}

// CanSplit reports whether the hand is an unplayed pair of equal rank.
func (h *Hand) CanSplit() bool {
	return h.Status == HandPlaying &&
		len(h.Cards) == 2 &&
		h.Cards[0].Rank == h.Cards[1].Rank
}

// IsBlackjack reports a natural: 21 from the first two cards of a hand that
// did not come from a split.
func (h *Hand) IsBlackjack() bool {
	if h.FromSplit || len(h.Cards) != 2 {
		return false
	}
	if h.Status != HandPlaying && h.Status != HandBlackjack {
		return false
	}
	return h.Value() == 21
}

func (h *Hand) clone() *Hand {
	c := *h
	c.Cards = append([]deck.Card(nil), h.Cards...)
	return &c
}
