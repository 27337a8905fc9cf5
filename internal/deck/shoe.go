package deck

import (
	"math/rand/v2"
)

// DeckSize is the number of cards in a full shoe.
const DeckSize = 52

// Shoe is the drawable pool of cards for one table. A Shoe never runs dry:
// drawing from an empty shoe refills it with a freshly shuffled 52-card set
// first.
type Shoe struct {
	cards      []Card
	stacked    []Card
	rng        *rand.Rand
	reshuffles int
}

// NewShoe creates a full, shuffled shoe driven by rng.
func NewShoe(rng *rand.Rand) *Shoe {
	s := &Shoe{
		cards: make([]Card, 0, DeckSize),
		rng:   rng,
	}
	s.fill()
	s.Shuffle()
	return s
}

// NewStackedShoe returns a shoe that deals the given cards in order before
// falling back to normal refill behaviour. Intended for tests.
func NewStackedShoe(rng *rand.Rand, cards ...Card) *Shoe {
	s := &Shoe{
		cards:   make([]Card, 0, DeckSize),
		stacked: append([]Card(nil), cards...),
		rng:     rng,
	}
	s.fill()
	s.Shuffle()
	return s
}

func (s *Shoe) fill() {
	s.cards = s.cards[:0]
	for _, suit := range Suits {
		for rank := Two; rank <= Ace; rank++ {
			s.cards = append(s.cards, NewCard(suit, rank))
		}
	}
}

// Shuffle randomizes the order of the remaining cards (Fisher-Yates).
func (s *Shoe) Shuffle() {
	for i := len(s.cards) - 1; i > 0; i-- {
		j := s.rng.IntN(i + 1)
		s.cards[i], s.cards[j] = s.cards[j], s.cards[i]
	}
}

// Draw removes and returns the top card. It never fails.
func (s *Shoe) Draw() Card {
	if len(s.stacked) > 0 {
		card := s.stacked[0]
		s.stacked = s.stacked[1:]
		return card
	}

	if len(s.cards) == 0 {
		s.fill()
		s.Shuffle()
		s.reshuffles++
	}

	card := s.cards[0]
	s.cards = s.cards[1:]
	return card
}

// Remaining returns the number of cards left before the next refill.
func (s *Shoe) Remaining() int {
	return len(s.stacked) + len(s.cards)
}

// Reshuffles returns how many times the shoe was refilled after running dry.
func (s *Shoe) Reshuffles() int {
	return s.reshuffles
}
