// Package ledger holds player balances and settles finished rounds.
//
// Stakes are escrowed: a stake is debited when a player joins a table (and
// again when they split), and Settle credits the payout once the round has
// finished. A push therefore pays the stake back, a loss pays nothing.
//
// Payouts use integer arithmetic only:
//
//	win        2 × stake
//	blackjack  ⌊5 × stake / 2⌋
//	push       1 × stake
//	lose       0
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultStartingBalance is credited to a player the first time the ledger
// sees them.
const DefaultStartingBalance int64 = 1000

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must not be negative")
	ErrInvalidOutcome    = errors.New("invalid outcome")
	ErrUnknownBackend    = errors.New("unknown ledger backend")
)

// Outcome is the terminal result of one hand as far as money is concerned.
type Outcome string

const (
	OutcomeWin       Outcome = "win"
	OutcomeBlackjack Outcome = "blackjack"
	OutcomeLose      Outcome = "lose"
	OutcomePush      Outcome = "push"
)

// Valid reports whether o is one of the settled outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeWin, OutcomeBlackjack, OutcomeLose, OutcomePush:
		return true
	}
	return false
}

// Won reports whether the outcome counts as a win in player statistics.
func (o Outcome) Won() bool {
	return o == OutcomeWin || o == OutcomeBlackjack
}

// Payout returns the amount credited back for stake under outcome.
func Payout(stake int64, outcome Outcome) int64 {
	switch outcome {
	case OutcomeWin:
		return 2 * stake
	case OutcomeBlackjack:
		return 5 * stake / 2
	case OutcomePush:
		return stake
	default:
		return 0
	}
}

// Stats are lifetime counters for one player.
type Stats struct {
	Player      string `json:"player"`
	Balance     int64  `json:"balance"`
	GamesPlayed int64  `json:"gamesPlayed"`
	GamesWon    int64  `json:"gamesWon"`
	TotalBets   int64  `json:"totalBets"`
	BiggestWin  int64  `json:"biggestWin"`
}

// Entry is one settled hand in a player's history.
type Entry struct {
	Round   string    `json:"round"`
	Player  string    `json:"player"`
	Stake   int64     `json:"stake"`
	Outcome Outcome   `json:"outcome"`
	Payout  int64     `json:"payout"`
	Time    time.Time `json:"time"`
}

// Ledger is the balance store consumed by the game service. Implementations
// are safe for concurrent use by different players.
type Ledger interface {
	// Balance returns the player's balance, opening an account at the
	// starting balance if needed.
	Balance(ctx context.Context, player string) (int64, error)

	// Debit escrows amount from the player's balance. It fails with
	// ErrInsufficientFunds and leaves the balance untouched if the player
	// cannot cover it.
	Debit(ctx context.Context, player string, amount int64) error

	// Credit returns previously escrowed funds without recording a round,
	// used for refunds from cancelled tables and players who leave.
	Credit(ctx context.Context, player string, amount int64) error

	// Settle credits the payout for one finished hand, updates statistics
	// and appends a history entry. It returns the amount credited.
	Settle(ctx context.Context, round, player string, stake int64, outcome Outcome) (int64, error)

	Stats(ctx context.Context, player string) (Stats, error)

	// History returns up to limit entries for player, newest first. A
	// non-positive limit returns everything.
	History(ctx context.Context, player string, limit int) ([]Entry, error)

	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend         string
	Path            string
	StartingBalance int64
}

// Open builds the ledger backend named by cfg.Backend: "memory", "file" or
// "sqlite".
func Open(cfg Config) (Ledger, error) {
	if cfg.StartingBalance <= 0 {
		cfg.StartingBalance = DefaultStartingBalance
	}
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(cfg.StartingBalance), nil
	case "file":
		return NewFile(cfg.Path, cfg.StartingBalance)
	case "sqlite":
		return NewSQL(cfg.Path, cfg.StartingBalance)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

func checkAmount(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	return nil
}
