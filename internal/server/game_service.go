package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/ledger"
	"github.com/lox/blackjack/internal/randutil"
	"github.com/lox/blackjack/internal/registry"
)

var (
	ErrBetTooSmall    = errors.New("bet below table minimum")
	ErrBetTooLarge    = errors.New("bet above table maximum")
	ErrNotHost        = errors.New("only the host can do that")
	ErrNotAtTable     = errors.New("player is not at this table")
	ErrActionRejected = errors.New("action not allowed right now")
)

// ServiceConfig holds the house rules and sweep cadence.
type ServiceConfig struct {
	MaxPlayers        int
	MinBet            int64
	MaxBet            int64
	TurnTimeout       time.Duration
	WaitTimeout       time.Duration
	TurnSweepInterval time.Duration
	WaitSweepInterval time.Duration
}

// DefaultServiceConfig mirrors DefaultConfig.
func DefaultServiceConfig() ServiceConfig {
	return DefaultConfig().ServiceConfig()
}

// Notifier receives table updates for presentation. Implementations must not
// call back into the GameService synchronously.
type Notifier interface {
	TableUpdated(snapshot game.Snapshot)
	RoundSettled(settlement Settlement)
	TableClosed(data TableClosedData)
}

type nopNotifier struct{}

func (nopNotifier) TableUpdated(game.Snapshot)  {}
func (nopNotifier) RoundSettled(Settlement)     {}
func (nopNotifier) TableClosed(TableClosedData) {}

// GameService turns player intents into table operations. It escrows stakes
// through the ledger, settles finished rounds outside any table lock and
// retires tables from the registry once their result has been reported.
type GameService struct {
	registry *registry.Registry
	ledger   ledger.Ledger
	notifier Notifier
	clock    quartz.Clock
	logger   *log.Logger
	cfg      ServiceConfig

	// newShoe supplies the shoe for each new table; tests stack it.
	newShoe func() *deck.Shoe
}

// NewGameService creates a service over reg and l.
func NewGameService(reg *registry.Registry, l ledger.Ledger, cfg ServiceConfig, clock quartz.Clock, logger *log.Logger) *GameService {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	defaults := DefaultServiceConfig()
	if cfg.MaxPlayers <= 0 {
		cfg.MaxPlayers = defaults.MaxPlayers
	}
	if cfg.MinBet <= 0 {
		cfg.MinBet = defaults.MinBet
	}
	if cfg.MaxBet <= 0 {
		cfg.MaxBet = defaults.MaxBet
	}
	if cfg.TurnSweepInterval <= 0 {
		cfg.TurnSweepInterval = defaults.TurnSweepInterval
	}
	if cfg.WaitSweepInterval <= 0 {
		cfg.WaitSweepInterval = defaults.WaitSweepInterval
	}

	return &GameService{
		registry: reg,
		ledger:   l,
		notifier: nopNotifier{},
		clock:    clock,
		logger:   logger.WithPrefix("game-service"),
		cfg:      cfg,
		newShoe: func() *deck.Shoe {
			return deck.NewShoe(randutil.New(randutil.NewSeed()))
		},
	}
}

// SetNotifier wires the presentation layer.
func (gs *GameService) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	gs.notifier = n
}

func (gs *GameService) checkBet(bet int64) error {
	if bet < gs.cfg.MinBet {
		return fmt.Errorf("%w: %d < %d", ErrBetTooSmall, bet, gs.cfg.MinBet)
	}
	if bet > gs.cfg.MaxBet {
		return fmt.Errorf("%w: %d > %d", ErrBetTooLarge, bet, gs.cfg.MaxBet)
	}
	return nil
}

func (gs *GameService) table(chatID string) (*game.Table, error) {
	t, ok := gs.registry.Get(chatID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrTableNotFound, chatID)
	}
	return t, nil
}

// CreateTable opens a table in chatID and seats host with bet.
func (gs *GameService) CreateTable(ctx context.Context, chatID, host string, bet int64) (game.Snapshot, error) {
	if err := gs.checkBet(bet); err != nil {
		return game.Snapshot{}, err
	}

	t, err := gs.registry.Create(chatID, host, game.Options{
		MaxPlayers:  gs.cfg.MaxPlayers,
		TurnTimeout: gs.cfg.TurnTimeout,
		WaitTimeout: gs.cfg.WaitTimeout,
		Shoe:        gs.newShoe(),
	})
	if err != nil {
		return game.Snapshot{}, err
	}

	if err := gs.ledger.Debit(ctx, host, bet); err != nil {
		gs.registry.Remove(chatID)
		return game.Snapshot{}, fmt.Errorf("escrow stake: %w", err)
	}
	if !t.AddPlayer(host, bet) {
		gs.refund(ctx, host, bet)
		gs.registry.Remove(chatID)
		return game.Snapshot{}, ErrActionRejected
	}

	snap := t.Snapshot()
	gs.notifier.TableUpdated(snap)
	return snap, nil
}

// JoinTable seats player at the waiting table in chatID.
func (gs *GameService) JoinTable(ctx context.Context, chatID, player string, bet int64) (game.Snapshot, error) {
	if err := gs.checkBet(bet); err != nil {
		return game.Snapshot{}, err
	}
	t, err := gs.table(chatID)
	if err != nil {
		return game.Snapshot{}, err
	}
	if t.HasPlayer(player) {
		return game.Snapshot{}, fmt.Errorf("%w: already seated", ErrActionRejected)
	}
	if err := gs.registry.Track(player, chatID); err != nil {
		return game.Snapshot{}, err
	}

	if err := gs.ledger.Debit(ctx, player, bet); err != nil {
		gs.registry.Untrack(player, chatID)
		return game.Snapshot{}, fmt.Errorf("escrow stake: %w", err)
	}
	if !t.AddPlayer(player, bet) {
		gs.refund(ctx, player, bet)
		gs.registry.Untrack(player, chatID)
		return game.Snapshot{}, fmt.Errorf("%w: table is full or has started", ErrActionRejected)
	}

	gs.logger.Info("Player joined", "chat", chatID, "player", player, "bet", bet)
	snap := t.Snapshot()
	gs.notifier.TableUpdated(snap)
	return snap, nil
}

// LeaveTable removes a non-host player from a waiting table and refunds
// their stake.
func (gs *GameService) LeaveTable(ctx context.Context, chatID, player string) error {
	t, err := gs.table(chatID)
	if err != nil {
		return err
	}
	if !t.HasPlayer(player) {
		return ErrNotAtTable
	}
	bet, ok := t.RemovePlayer(player)
	if !ok {
		return fmt.Errorf("%w: cannot leave", ErrActionRejected)
	}
	gs.refund(ctx, player, bet)
	gs.registry.Untrack(player, chatID)

	gs.logger.Info("Player left", "chat", chatID, "player", player, "refund", bet)
	gs.notifier.TableUpdated(t.Snapshot())
	return nil
}

// StartGame deals the round. Only the host may start it.
func (gs *GameService) StartGame(ctx context.Context, chatID, player string) (game.Snapshot, error) {
	t, err := gs.table(chatID)
	if err != nil {
		return game.Snapshot{}, err
	}
	if t.Host() != player {
		return game.Snapshot{}, ErrNotHost
	}
	if !t.Start() {
		return game.Snapshot{}, fmt.Errorf("%w: table cannot start", ErrActionRejected)
	}
	gs.registry.MarkStarted(chatID)
	return gs.afterAction(ctx, t), nil
}

// Hit draws a card for the player on turn.
func (gs *GameService) Hit(ctx context.Context, chatID, player string) (game.Snapshot, error) {
	return gs.play(ctx, chatID, player, (*game.Table).Hit)
}

// Stand ends the current hand of the player on turn.
func (gs *GameService) Stand(ctx context.Context, chatID, player string) (game.Snapshot, error) {
	return gs.play(ctx, chatID, player, (*game.Table).Stand)
}

func (gs *GameService) play(ctx context.Context, chatID, player string, action func(*game.Table, string) bool) (game.Snapshot, error) {
	t, err := gs.table(chatID)
	if err != nil {
		return game.Snapshot{}, err
	}
	if !action(t, player) {
		return game.Snapshot{}, fmt.Errorf("%w: not your turn", ErrActionRejected)
	}
	return gs.afterAction(ctx, t), nil
}

// Split splits the pair of the player on turn, escrowing a matching stake
// first. The stake is refunded if the split is no longer possible once the
// funds have moved.
func (gs *GameService) Split(ctx context.Context, chatID, player string) (game.Snapshot, error) {
	t, err := gs.table(chatID)
	if err != nil {
		return game.Snapshot{}, err
	}
	h, ok := t.CurrentHand()
	if !ok || h.Player != player || !h.CanSplit() {
		return game.Snapshot{}, fmt.Errorf("%w: cannot split", ErrActionRejected)
	}

	if err := gs.ledger.Debit(ctx, player, h.Bet); err != nil {
		return game.Snapshot{}, fmt.Errorf("escrow split stake: %w", err)
	}
	if _, ok := t.Split(player); !ok {
		gs.refund(ctx, player, h.Bet)
		return game.Snapshot{}, fmt.Errorf("%w: cannot split", ErrActionRejected)
	}
	return gs.afterAction(ctx, t), nil
}

// CancelTable cancels a waiting table and refunds every stake. Only the host
// may cancel.
func (gs *GameService) CancelTable(ctx context.Context, chatID, player string) error {
	t, err := gs.table(chatID)
	if err != nil {
		return err
	}
	if t.Host() != player {
		return ErrNotHost
	}
	refunds, ok := t.Cancel()
	if !ok {
		return fmt.Errorf("%w: round already started", ErrActionRejected)
	}
	gs.registry.Remove(chatID)
	gs.refundAll(ctx, refunds)

	gs.logger.Info("Table cancelled", "chat", chatID, "table", t.ID())
	gs.notifier.TableClosed(TableClosedData{ChatID: chatID, TableID: t.ID(), Reason: CloseReasonCancelled})
	return nil
}

// Snapshot returns the current state of the table in chatID.
func (gs *GameService) Snapshot(chatID string) (game.Snapshot, error) {
	t, err := gs.table(chatID)
	if err != nil {
		return game.Snapshot{}, err
	}
	return t.Snapshot(), nil
}

// Balance returns the player's ledger statistics, including the balance.
func (gs *GameService) Balance(ctx context.Context, player string) (ledger.Stats, error) {
	return gs.ledger.Stats(ctx, player)
}

// History returns the player's most recent settled hands.
func (gs *GameService) History(ctx context.Context, player string, limit int) ([]ledger.Entry, error) {
	return gs.ledger.History(ctx, player, limit)
}

// ListTables describes every live table.
func (gs *GameService) ListTables() []TableInfo {
	tables := gs.registry.List()
	infos := make([]TableInfo, 0, len(tables))
	for _, t := range tables {
		infos = append(infos, TableInfo{
			ChatID:      t.ChatID(),
			TableID:     t.ID(),
			Host:        t.Host(),
			PlayerCount: len(t.Players()),
			MaxPlayers:  t.MaxPlayers(),
			Status:      t.Status(),
		})
	}
	return infos
}

// afterAction publishes the new state and settles the round if it ended.
func (gs *GameService) afterAction(ctx context.Context, t *game.Table) game.Snapshot {
	snap := t.Snapshot()
	gs.notifier.TableUpdated(snap)
	if snap.Status == game.StatusFinished {
		gs.settle(ctx, t)
	}
	return snap
}

// settle pays out a finished table exactly once and retires it. Ledger
// failures are logged per hand; the round result is never rolled back.
func (gs *GameService) settle(ctx context.Context, t *game.Table) {
	results, ok := t.TakeResults()
	if !ok {
		return
	}

	settlement := Settlement{
		ChatID:  t.ChatID(),
		TableID: t.ID(),
		Dealer:  t.Snapshot().Dealer,
		Lines:   make([]SettlementLine, 0, len(results)),
	}

	for _, r := range results {
		line := SettlementLine{
			Player:  r.Player,
			Hand:    r.Hand,
			Stake:   r.Stake,
			Outcome: outcomeOf(r.Outcome),
			Value:   r.Value,
		}
		payout, err := gs.ledger.Settle(ctx, t.ID(), r.Player, r.Stake, line.Outcome)
		if err != nil {
			gs.logger.Error("Failed to settle hand", "chat", t.ChatID(), "player", r.Player, "stake", r.Stake, "outcome", line.Outcome, "error", err)
			line.Error = err.Error()
		}
		line.Payout = payout
		settlement.Lines = append(settlement.Lines, line)
	}

	for i := range settlement.Lines {
		balance, err := gs.ledger.Balance(ctx, settlement.Lines[i].Player)
		if err != nil {
			gs.logger.Warn("Failed to read balance", "player", settlement.Lines[i].Player, "error", err)
			continue
		}
		settlement.Lines[i].Balance = balance
	}

	if current, ok := gs.registry.Get(t.ChatID()); ok && current == t {
		gs.registry.Remove(t.ChatID())
	}

	gs.logger.Info("Round settled", "chat", t.ChatID(), "table", t.ID(), "hands", len(settlement.Lines))
	gs.notifier.RoundSettled(settlement)
	gs.notifier.TableClosed(TableClosedData{ChatID: t.ChatID(), TableID: t.ID(), Reason: CloseReasonFinished})
}

func (gs *GameService) refund(ctx context.Context, player string, amount int64) {
	if amount == 0 {
		return
	}
	if err := gs.ledger.Credit(ctx, player, amount); err != nil {
		gs.logger.Error("Failed to refund stake", "player", player, "amount", amount, "error", err)
	}
}

func (gs *GameService) refundAll(ctx context.Context, refunds map[string]int64) {
	for player, amount := range refunds {
		gs.refund(ctx, player, amount)
	}
}

func outcomeOf(status game.HandStatus) ledger.Outcome {
	switch status {
	case game.HandWin:
		return ledger.OutcomeWin
	case game.HandBlackjack:
		return ledger.OutcomeBlackjack
	case game.HandPush:
		return ledger.OutcomePush
	default:
		return ledger.OutcomeLose
	}
}
