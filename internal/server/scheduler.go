package server

import (
	"context"
)

// SweepTurns auto-stands every expired turn, publishes the affected tables
// and settles any round that finished as a result. It returns the affected
// chats.
func (gs *GameService) SweepTurns(ctx context.Context) []string {
	affected := gs.registry.SweepTimeouts()
	for _, chatID := range affected {
		if t, ok := gs.registry.Get(chatID); ok {
			gs.afterAction(ctx, t)
		}
	}
	gs.settleFinished(ctx)
	return affected
}

// SweepWaitRoom cancels waiting tables that were never started, refunds
// their stakes and returns the expired chats.
func (gs *GameService) SweepWaitRoom(ctx context.Context) []string {
	expired := gs.registry.ExpireWaitRoom()
	chats := make([]string, 0, len(expired))
	for _, e := range expired {
		gs.refundAll(ctx, e.Refunds)
		gs.notifier.TableClosed(TableClosedData{ChatID: e.ChatID, TableID: e.Table.ID(), Reason: CloseReasonExpired})
		chats = append(chats, e.ChatID)
	}
	return chats
}

// settleFinished settles and retires any finished table still registered.
func (gs *GameService) settleFinished(ctx context.Context) {
	for _, t := range gs.registry.Finished() {
		gs.settle(ctx, t)
		if t.Cancelled() {
			gs.registry.Remove(t.ChatID())
		}
	}
}

// Run drives both sweeps from the service clock until ctx is cancelled.
func (gs *GameService) Run(ctx context.Context) error {
	turns := gs.clock.NewTicker(gs.cfg.TurnSweepInterval, "sweep", "turns")
	defer turns.Stop()
	waits := gs.clock.NewTicker(gs.cfg.WaitSweepInterval, "sweep", "wait")
	defer waits.Stop()

	gs.logger.Info("Sweeper started", "turnInterval", gs.cfg.TurnSweepInterval, "waitInterval", gs.cfg.WaitSweepInterval)

	for {
		select {
		case <-ctx.Done():
			gs.logger.Info("Sweeper stopped")
			return nil
		case <-turns.C:
			if affected := gs.SweepTurns(ctx); len(affected) > 0 {
				gs.logger.Debug("Turn sweep", "tables", len(affected))
			}
		case <-waits.C:
			if expired := gs.SweepWaitRoom(ctx); len(expired) > 0 {
				gs.logger.Debug("Wait room sweep", "tables", len(expired))
			}
		}
	}
}
