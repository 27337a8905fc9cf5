package game

import (
	"testing"

	"github.com/lox/blackjack/internal/deck"
	"github.com/stretchr/testify/assert"
)

func handOf(cards string) *Hand {
	h := newHand(0, "p", 10)
	for _, c := range deck.MustParseCards(cards) {
		h.AddCard(c)
	}
	return h
}

func TestHandValue(t *testing.T) {
	tests := []struct {
		cards string
		value int
		soft  bool
	}{
		{"As 6d 6c", 13, false},
		{"As Ad", 12, true},
		{"As Ad Kc", 12, false},
		{"As Ad Ah Ac", 14, true},
		{"As Kd", 21, true},
		{"As 6d", 17, true},
		{"As 6d Th", 17, false},
		{"Ks Qd 2c", 22, false},
		{"9s 7d", 16, false},
		{"5s 5d As", 21, true},
	}

	for _, tt := range tests {
		t.Run(tt.cards, func(t *testing.T) {
			h := handOf(tt.cards)
			assert.Equal(t, tt.value, h.Value())
			assert.Equal(t, tt.soft, h.IsSoft())
			assert.Equal(t, tt.value > 21, h.IsBust())
		})
	}
}

func TestHandValueNeverBustsWhenAcesCanDrop(t *testing.T) {
	// Every combination of up to four aces with any two other cards has a
	// non-bust resolution whenever the hard total is at most 21.
	for _, a := range deck.Suits {
		for r1 := deck.Two; r1 <= deck.King; r1++ {
			for r2 := deck.Two; r2 <= deck.King; r2++ {
				h := newHand(0, "p", 0)
				h.AddCard(deck.NewCard(a, deck.Ace))
				h.AddCard(deck.NewCard(deck.Spades, r1))
				h.AddCard(deck.NewCard(deck.Hearts, r2))

				hard := 1 + deck.NewCard(deck.Spades, r1).Points() + deck.NewCard(deck.Hearts, r2).Points()
				if hard <= 21 {
					assert.LessOrEqual(t, h.Value(), 21, "cards %v", h.Cards)
				}
			}
		}
	}
}

func TestHandIsBlackjack(t *testing.T) {
	assert.True(t, handOf("As Kd").IsBlackjack())
	assert.True(t, handOf("Th Ac").IsBlackjack())
	assert.False(t, handOf("As 6d Th").IsBlackjack(), "three-card 21 is not a natural")
	assert.False(t, handOf("7s 7d 7h").IsBlackjack())
	assert.False(t, handOf("Ks Qd").IsBlackjack())

	split := handOf("As Kd")
	split.FromSplit = true
	assert.False(t, split.IsBlackjack(), "split 21 is not a natural")

	stood := handOf("As Kd")
	stood.Status = HandStand
	assert.False(t, stood.IsBlackjack())

	marked := handOf("As Kd")
	marked.Status = HandBlackjack
	assert.True(t, marked.IsBlackjack())
}

func TestHandCanSplit(t *testing.T) {
	assert.True(t, handOf("8s 8d").CanSplit())
	assert.True(t, handOf("As Ad").CanSplit())
	assert.False(t, handOf("Ks Qd").CanSplit(), "equal value but different rank")
	assert.False(t, handOf("8s 8d 8h").CanSplit())
	assert.False(t, handOf("8s").CanSplit())

	stood := handOf("8s 8d")
	stood.Status = HandStand
	assert.False(t, stood.CanSplit())
}
