package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/coder/quartz"
)

// Option customises a ledger backend.
type Option func(*options)

type options struct {
	clock quartz.Clock
}

// WithClock sets the clock used to timestamp history entries.
func WithClock(clock quartz.Clock) Option {
	return func(o *options) { o.clock = clock }
}

func buildOptions(opts []Option) options {
	o := options{clock: quartz.NewReal()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// account is the persisted state of one player.
type account struct {
	Balance     int64 `json:"balance"`
	GamesPlayed int64 `json:"gamesPlayed"`
	GamesWon    int64 `json:"gamesWon"`
	TotalBets   int64 `json:"totalBets"`
	BiggestWin  int64 `json:"biggestWin"`
}

// book is the in-memory state shared by the memory and file backends.
type book struct {
	Accounts map[string]*account `json:"accounts"`
	History  []Entry             `json:"history"`
}

func newBook() *book {
	return &book{Accounts: make(map[string]*account)}
}

func (b *book) account(player string, starting int64) *account {
	acc, ok := b.Accounts[player]
	if !ok {
		acc = &account{Balance: starting}
		b.Accounts[player] = acc
	}
	return acc
}

// Memory is a process-local Ledger. Balances are lost on restart.
type Memory struct {
	mu       sync.RWMutex
	book     *book
	starting int64
	clock    quartz.Clock

	// persist, when set, is called with the lock held after every mutation.
	persist func(*book) error
}

var _ Ledger = (*Memory)(nil)

// NewMemory creates an empty in-memory ledger.
func NewMemory(startingBalance int64, opts ...Option) *Memory {
	if startingBalance <= 0 {
		startingBalance = DefaultStartingBalance
	}
	o := buildOptions(opts)
	return &Memory{
		book:     newBook(),
		starting: startingBalance,
		clock:    o.clock,
	}
}

func (m *Memory) Balance(_ context.Context, player string) (int64, error) {
	m.mu.RLock()
	if acc, ok := m.book.Accounts[player]; ok {
		balance := acc.Balance
		m.mu.RUnlock()
		return balance, nil
	}
	m.mu.RUnlock()
	return m.starting, nil
}

func (m *Memory) Debit(_ context.Context, player string, amount int64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acc := m.book.account(player, m.starting)
	if acc.Balance < amount {
		return fmt.Errorf("%w: balance %d, need %d", ErrInsufficientFunds, acc.Balance, amount)
	}
	acc.Balance -= amount
	if err := m.save(); err != nil {
		acc.Balance += amount
		return err
	}
	return nil
}

func (m *Memory) Credit(_ context.Context, player string, amount int64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acc := m.book.account(player, m.starting)
	acc.Balance += amount
	if err := m.save(); err != nil {
		acc.Balance -= amount
		return err
	}
	return nil
}

func (m *Memory) Settle(_ context.Context, round, player string, stake int64, outcome Outcome) (int64, error) {
	if err := checkAmount(stake); err != nil {
		return 0, err
	}
	if !outcome.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	payout := Payout(stake, outcome)

	m.mu.Lock()
	defer m.mu.Unlock()

	acc := m.book.account(player, m.starting)
	before, entries := *acc, len(m.book.History)

	acc.Balance += payout
	acc.GamesPlayed++
	acc.TotalBets += stake
	if outcome.Won() {
		acc.GamesWon++
		acc.BiggestWin = max(acc.BiggestWin, payout)
	}
	m.book.History = append(m.book.History, Entry{
		Round:   round,
		Player:  player,
		Stake:   stake,
		Outcome: outcome,
		Payout:  payout,
		Time:    m.clock.Now(),
	})

	if err := m.save(); err != nil {
		*acc = before
		m.book.History = m.book.History[:entries]
		return 0, err
	}
	return payout, nil
}

func (m *Memory) Stats(_ context.Context, player string) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.book.Accounts[player]
	if !ok {
		return Stats{Player: player, Balance: m.starting}, nil
	}
	return Stats{
		Player:      player,
		Balance:     acc.Balance,
		GamesPlayed: acc.GamesPlayed,
		GamesWon:    acc.GamesWon,
		TotalBets:   acc.TotalBets,
		BiggestWin:  acc.BiggestWin,
	}, nil
}

func (m *Memory) History(_ context.Context, player string, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []Entry
	for _, e := range slices.Backward(m.book.History) {
		if e.Player != player {
			continue
		}
		entries = append(entries, e)
		if limit > 0 && len(entries) == limit {
			break
		}
	}
	return entries, nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) save() error {
	if m.persist == nil {
		return nil
	}
	return m.persist(m.book)
}
