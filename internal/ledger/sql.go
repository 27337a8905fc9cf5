package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Account is a row in the accounts table.
type Account struct {
	Player      string `gorm:"primaryKey"`
	Balance     int64  `gorm:"not null"`
	GamesPlayed int64  `gorm:"not null;default:0"`
	GamesWon    int64  `gorm:"not null;default:0"`
	TotalBets   int64  `gorm:"not null;default:0"`
	BiggestWin  int64  `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Account) TableName() string { return "accounts" }

// GameHistory is a row in the game_history table, one per settled hand.
type GameHistory struct {
	ID        uint   `gorm:"primaryKey"`
	Round     string `gorm:"index"`
	Player    string `gorm:"index;not null"`
	Stake     int64
	Outcome   string
	Payout    int64
	CreatedAt time.Time
}

func (GameHistory) TableName() string { return "game_history" }

// SQL is a Ledger stored in sqlite through gorm. Balance changes are applied
// as conditional updates so concurrent debits cannot overdraw an account.
type SQL struct {
	db       *gorm.DB
	starting int64
	clock    quartz.Clock
}

var _ Ledger = (*SQL)(nil)

// NewSQL opens (and migrates) the sqlite database at dsn. Use ":memory:" for
// a throwaway database.
func NewSQL(dsn string, startingBalance int64, opts ...Option) (*SQL, error) {
	if dsn == "" {
		return nil, errors.New("sql ledger requires a path")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	return newSQL(db, startingBalance, opts...)
}

func newSQL(db *gorm.DB, startingBalance int64, opts ...Option) (*SQL, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("ledger database handle: %w", err)
	}
	// sqlite allows a single writer; one connection also keeps :memory:
	// databases alive across calls.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Account{}, &GameHistory{}); err != nil {
		return nil, fmt.Errorf("migrate ledger database: %w", err)
	}

	if startingBalance <= 0 {
		startingBalance = DefaultStartingBalance
	}
	o := buildOptions(opts)
	return &SQL{db: db, starting: startingBalance, clock: o.clock}, nil
}

func (s *SQL) ensureAccount(tx *gorm.DB, player string) (*Account, error) {
	var acc Account
	err := tx.Where(Account{Player: player}).
		Attrs(Account{Balance: s.starting}).
		FirstOrCreate(&acc).Error
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", player, err)
	}
	return &acc, nil
}

func (s *SQL) Balance(ctx context.Context, player string) (int64, error) {
	var acc Account
	err := s.db.WithContext(ctx).First(&acc, "player = ?", player).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.starting, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance %s: %w", player, err)
	}
	return acc.Balance, nil
}

func (s *SQL) Debit(ctx context.Context, player string, amount int64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acc, err := s.ensureAccount(tx, player)
		if err != nil {
			return err
		}
		res := tx.Model(&Account{}).
			Where("player = ? AND balance >= ?", player, amount).
			UpdateColumn("balance", gorm.Expr("balance - ?", amount))
		if res.Error != nil {
			return fmt.Errorf("debit %s: %w", player, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: balance %d, need %d", ErrInsufficientFunds, acc.Balance, amount)
		}
		return nil
	})
}

func (s *SQL) Credit(ctx context.Context, player string, amount int64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.ensureAccount(tx, player); err != nil {
			return err
		}
		err := tx.Model(&Account{}).
			Where("player = ?", player).
			UpdateColumn("balance", gorm.Expr("balance + ?", amount)).Error
		if err != nil {
			return fmt.Errorf("credit %s: %w", player, err)
		}
		return nil
	})
}

func (s *SQL) Settle(ctx context.Context, round, player string, stake int64, outcome Outcome) (int64, error) {
	if err := checkAmount(stake); err != nil {
		return 0, err
	}
	if !outcome.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	payout := Payout(stake, outcome)
	updates := map[string]any{
		"balance":      gorm.Expr("balance + ?", payout),
		"games_played": gorm.Expr("games_played + 1"),
		"total_bets":   gorm.Expr("total_bets + ?", stake),
	}
	if outcome.Won() {
		updates["games_won"] = gorm.Expr("games_won + 1")
		updates["biggest_win"] = gorm.Expr("CASE WHEN ? > biggest_win THEN ? ELSE biggest_win END", payout, payout)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.ensureAccount(tx, player); err != nil {
			return err
		}
		if err := tx.Model(&Account{}).Where("player = ?", player).UpdateColumns(updates).Error; err != nil {
			return fmt.Errorf("settle %s: %w", player, err)
		}
		entry := GameHistory{
			Round:     round,
			Player:    player,
			Stake:     stake,
			Outcome:   string(outcome),
			Payout:    payout,
			CreatedAt: s.clock.Now(),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("record history %s: %w", player, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return payout, nil
}

func (s *SQL) Stats(ctx context.Context, player string) (Stats, error) {
	var acc Account
	err := s.db.WithContext(ctx).First(&acc, "player = ?", player).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Stats{Player: player, Balance: s.starting}, nil
	}
	if err != nil {
		return Stats{}, fmt.Errorf("stats %s: %w", player, err)
	}
	return Stats{
		Player:      acc.Player,
		Balance:     acc.Balance,
		GamesPlayed: acc.GamesPlayed,
		GamesWon:    acc.GamesWon,
		TotalBets:   acc.TotalBets,
		BiggestWin:  acc.BiggestWin,
	}, nil
}

func (s *SQL) History(ctx context.Context, player string, limit int) ([]Entry, error) {
	q := s.db.WithContext(ctx).Where("player = ?", player).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []GameHistory
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("history %s: %w", player, err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, Entry{
			Round:   r.Round,
			Player:  r.Player,
			Stake:   r.Stake,
			Outcome: Outcome(r.Outcome),
			Payout:  r.Payout,
			Time:    r.CreatedAt,
		})
	}
	return entries, nil
}

func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
