package game

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/randutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type player struct {
	id  string
	bet int64
}

// newTestTable seats players in order on a table whose shoe deals cards
// first. Start deals one card to each player then the dealer, twice.
func newTestTable(t *testing.T, cards string, players ...player) (*Table, *quartz.Mock) {
	t.Helper()

	clock := quartz.NewMock(t)
	shoe := deck.NewStackedShoe(randutil.New(1), deck.MustParseCards(cards)...)
	host := ""
	if len(players) > 0 {
		host = players[0].id
	}
	table := NewTable("chat-1", host, Options{Clock: clock, Shoe: shoe, MaxPlayers: 3})
	for _, p := range players {
		require.True(t, table.AddPlayer(p.id, p.bet))
	}
	return table, clock
}

func TestAddPlayer(t *testing.T) {
	table, _ := newTestTable(t, "", player{"alice", 100})

	assert.False(t, table.AddPlayer("alice", 100), "duplicate join")
	assert.False(t, table.AddPlayer("bob", -1), "negative bet")
	assert.True(t, table.AddPlayer("bob", 50))
	assert.True(t, table.AddPlayer("carol", 50))
	assert.False(t, table.AddPlayer("dave", 50), "table full")

	assert.Equal(t, []string{"alice", "bob", "carol"}, table.Players())
	assert.Equal(t, int64(50), table.Stake("bob"))

	require.True(t, table.Start())
	assert.False(t, table.AddPlayer("erin", 10), "joining after start")
}

func TestStartRequiresWaitingTableWithPlayers(t *testing.T) {
	empty := NewTable("chat-1", "alice", Options{Clock: quartz.NewMock(t)})
	assert.False(t, empty.Start())
	assert.Equal(t, StatusWaiting, empty.Status())

	table, _ := newTestTable(t, "9s 5d 7h 8c", player{"alice", 10})
	require.True(t, table.Start())
	assert.False(t, table.Start(), "second start")
}

func TestStartDealsTwoCardsEach(t *testing.T) {
	table, _ := newTestTable(t, "2s 3s 4s 5s 6s 7s", player{"alice", 10}, player{"bob", 20})
	require.True(t, table.Start())

	assert.Equal(t, StatusPlaying, table.Status())
	assert.Equal(t, deck.MustParseCards("2s 5s"), table.Hands("alice")[0].Cards)
	assert.Equal(t, deck.MustParseCards("3s 6s"), table.Hands("bob")[0].Cards)
	assert.Equal(t, deck.MustParseCards("4s 7s"), table.DealerHand().Cards)

	order := table.TurnOrder()
	require.Len(t, order, 2)
	assert.Equal(t, "alice", order[0].Player)
	assert.Equal(t, "bob", order[1].Player)

	current, ok := table.CurrentPlayer()
	require.True(t, ok)
	assert.Equal(t, "alice", current)
}

func TestEndToEndBlackjackAndStand(t *testing.T) {
	tests := []struct {
		name       string
		bobCards   [2]string
		bobOutcome HandStatus
	}{
		{name: "bob below dealer", bobCards: [2]string{"9h", "8s"}, bobOutcome: HandLose},
		{name: "bob ties dealer", bobCards: [2]string{"9h", "Ts"}, bobOutcome: HandPush},
		{name: "bob beats dealer", bobCards: [2]string{"Jh", "Ts"}, bobOutcome: HandWin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// alice: As Kc (natural); dealer: Kd 9c (19)
			cards := "As " + tt.bobCards[0] + " Kd Kc " + tt.bobCards[1] + " 9c"
			table, _ := newTestTable(t, cards, player{"alice", 100}, player{"bob", 50})
			require.True(t, table.Start())

			assert.Equal(t, HandBlackjack, table.Hands("alice")[0].Status)
			assert.Equal(t, HandPlaying, table.Hands("bob")[0].Status)

			current, ok := table.CurrentPlayer()
			require.True(t, ok)
			assert.Equal(t, "bob", current, "alice's natural is skipped")
			assert.Equal(t, 1, table.TurnPointer())

			assert.False(t, table.Stand("alice"))
			require.True(t, table.Stand("bob"))

			assert.Equal(t, StatusFinished, table.Status())
			assert.Equal(t, 19, table.DealerHand().Value())

			results, ok := table.TakeResults()
			require.True(t, ok)
			require.Len(t, results, 2)
			assert.Equal(t, Result{Player: "alice", Hand: results[0].Hand, Stake: 100, Outcome: HandBlackjack, Value: 21}, results[0])
			assert.Equal(t, "bob", results[1].Player)
			assert.Equal(t, int64(50), results[1].Stake)
			assert.Equal(t, tt.bobOutcome, results[1].Outcome)

			_, again := table.TakeResults()
			assert.False(t, again, "results are reported once")
		})
	}
}

func TestEveryPlayerBlackjackSkipsTurnLoop(t *testing.T) {
	table, _ := newTestTable(t, "As Kh 5d Kc Ad 6c", player{"alice", 10}, player{"bob", 10})
	require.True(t, table.Start())

	assert.Equal(t, StatusFinished, table.Status())
	_, ok := table.CurrentPlayer()
	assert.False(t, ok)
	assert.GreaterOrEqual(t, table.DealerHand().Value(), DealerStandsOn)

	for _, r := range table.Results() {
		assert.Equal(t, HandBlackjack, r.Outcome)
	}
}

func TestHitBustAdvancesTurn(t *testing.T) {
	// alice: Kh 6d (16); bob: 9c 8s; dealer: Th 7c
	table, _ := newTestTable(t, "Kh 9c Th 6d 8s 7c Qs", player{"alice", 10}, player{"bob", 10})
	require.True(t, table.Start())

	require.True(t, table.Hit("alice"))
	alice := table.Hands("alice")[0]
	assert.Equal(t, HandBust, alice.Status)
	assert.Equal(t, 26, alice.Value())

	current, ok := table.CurrentPlayer()
	require.True(t, ok)
	assert.Equal(t, "bob", current)
	assert.False(t, table.Hit("alice"), "bust hand cannot hit")

	require.True(t, table.Stand("bob"))
	results := table.Results()
	require.Len(t, results, 2)
	assert.Equal(t, HandLose, results[0].Outcome)
	assert.Equal(t, HandBust, table.Hands("alice")[0].Status, "bust status survives resolution")
	assert.Equal(t, HandPush, results[1].Outcome, "17 against dealer 17")
}

func TestHitWithoutBustKeepsTurn(t *testing.T) {
	table, _ := newTestTable(t, "2s 9c Th 3d 8s 7c 4h", player{"alice", 10}, player{"bob", 10})
	require.True(t, table.Start())

	require.True(t, table.Hit("alice"))
	current, _ := table.CurrentPlayer()
	assert.Equal(t, "alice", current)
	assert.Equal(t, 9, table.Hands("alice")[0].Value())
	assert.Equal(t, 0, table.TurnPointer())
}

func TestWrongTurnIsANoOp(t *testing.T) {
	table, _ := newTestTable(t, "2s 9c Th 3d 8s 7c", player{"alice", 10}, player{"bob", 10})
	require.True(t, table.Start())

	before := table.Snapshot()
	order := table.TurnOrder()
	pointer := table.TurnPointer()
	dealer := table.DealerHand()

	assert.False(t, table.Hit("bob"))
	assert.False(t, table.Stand("bob"))
	_, split := table.Split("bob")
	assert.False(t, split)
	assert.False(t, table.Hit("mallory"))

	assert.Equal(t, before, table.Snapshot())
	assert.Equal(t, order, table.TurnOrder())
	assert.Equal(t, pointer, table.TurnPointer())
	assert.Equal(t, dealer, table.DealerHand())
}

func TestActionsBeforeStartFail(t *testing.T) {
	table, _ := newTestTable(t, "", player{"alice", 10})
	assert.False(t, table.Hit("alice"))
	assert.False(t, table.Stand("alice"))
	_, ok := table.ForceStand()
	assert.False(t, ok)
	_, ok = table.CurrentHand()
	assert.False(t, ok)
}

func TestSplitInsertsHandAfterCurrent(t *testing.T) {
	// alice: 8s 8h; bob: 9c 7d; dealer: Td 7c; split draws 3s then 2h
	table, _ := newTestTable(t, "8s 9c Td 8h 7d 7c 3s 2h", player{"alice", 100}, player{"bob", 10})
	require.True(t, table.Start())
	require.True(t, table.CanSplit("alice"))
	assert.False(t, table.CanSplit("bob"))

	orderBefore := table.TurnOrder()
	newHand, ok := table.Split("alice")
	require.True(t, ok)

	hands := table.Hands("alice")
	require.Len(t, hands, 2)
	assert.Equal(t, deck.MustParseCards("8s 3s"), hands[0].Cards)
	assert.Equal(t, deck.MustParseCards("8h 2h"), hands[1].Cards)
	assert.Equal(t, int64(100), hands[1].Bet)
	assert.True(t, hands[0].FromSplit)
	assert.True(t, hands[1].FromSplit)
	assert.Equal(t, int64(200), table.Stake("alice"))

	order := table.TurnOrder()
	require.Len(t, order, len(orderBefore)+1)
	assert.Equal(t, orderBefore[0], order[0])
	assert.Equal(t, Seat{Player: "alice", Hand: newHand.ID}, order[1])
	assert.Equal(t, orderBefore[1], order[2])
	assert.Equal(t, 0, table.TurnPointer())

	require.True(t, table.Stand("alice"))
	current, _ := table.CurrentHand()
	assert.Equal(t, newHand.ID, current.ID, "split hand is played next")

	require.True(t, table.Stand("alice"))
	next, _ := table.CurrentPlayer()
	assert.Equal(t, "bob", next)

	require.True(t, table.Stand("bob"))
	results := table.Results()
	require.Len(t, results, 3)
	assert.Equal(t, "alice", results[0].Player)
	assert.Equal(t, "alice", results[1].Player)
	assert.Equal(t, "bob", results[2].Player)
}

func TestSplitAcesMakeTwentyOneNotBlackjack(t *testing.T) {
	table, _ := newTestTable(t, "As Td Ah 9c Kd Qh", player{"alice", 10})
	require.True(t, table.Start())

	_, ok := table.Split("alice")
	require.True(t, ok)

	hands := table.Hands("alice")
	assert.Equal(t, 21, hands[0].Value())
	assert.Equal(t, HandPlaying, hands[0].Status)
	assert.False(t, hands[0].IsBlackjack())

	require.True(t, table.Stand("alice"))
	require.True(t, table.Stand("alice"))

	for _, r := range table.Results() {
		assert.Equal(t, HandWin, r.Outcome, "split 21 beats dealer 19 as a regular win")
	}
}

func TestTurnPointerNeverDecreases(t *testing.T) {
	for seed := int64(0); seed < 200; seed++ {
		rng := randutil.New(seed)
		clock := quartz.NewMock(t)
		table := NewTable("chat", "p0", Options{Clock: clock, Shoe: deck.NewShoe(randutil.New(seed))})
		players := []string{"p0", "p1", "p2"}
		for _, p := range players {
			require.True(t, table.AddPlayer(p, 10))
		}
		require.True(t, table.Start())

		last := table.TurnPointer()
		for step := 0; step < 100 && table.Status() == StatusPlaying; step++ {
			p := players[rng.IntN(len(players))]
			switch rng.IntN(4) {
			case 0:
				table.Hit(p)
			case 1:
				table.Stand(p)
			case 2:
				table.Split(p)
			case 3:
				table.ForceStand()
			}

			pointer := table.TurnPointer()
			require.GreaterOrEqual(t, pointer, last, "seed %d step %d", seed, step)
			last = pointer

			for _, seat := range table.TurnOrder() {
				found := false
				for _, h := range table.Hands(seat.Player) {
					if h.ID == seat.Hand {
						found = true
					}
				}
				require.True(t, found, "turn order references a missing hand")
			}
		}
	}
}

func TestTurnTimeout(t *testing.T) {
	table, clock := newTestTable(t, "2s 9c Th 3d 8s 7c", player{"alice", 10}, player{"bob", 10})
	require.True(t, table.Start())
	t0 := clock.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock.Advance(30 * time.Second).MustWait(ctx)
	assert.False(t, table.IsCurrentTurnExpired(clock.Now()), "exactly 30s is not expired")

	clock.Advance(1 * time.Second).MustWait(ctx)
	require.True(t, table.IsCurrentTurnExpired(clock.Now()))
	assert.Equal(t, t0.Add(30*time.Second), table.TurnDeadline())

	stood, ok := table.ForceStand()
	require.True(t, ok)
	assert.Equal(t, "alice", stood)
	assert.Equal(t, HandStand, table.Hands("alice")[0].Status)
	assert.Equal(t, 1, table.TurnPointer(), "advanced exactly once")
	assert.False(t, table.IsCurrentTurnExpired(clock.Now()), "bob's turn starts fresh")
}

func TestForceStandIfExpiredSparesFreshTurn(t *testing.T) {
	table, clock := newTestTable(t, "2s 9c Th 3d 8s 7c", player{"alice", 10}, player{"bob", 10})
	require.True(t, table.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock.Advance(31 * time.Second).MustWait(ctx)
	sweepAt := clock.Now()
	require.True(t, table.IsCurrentTurnExpired(sweepAt))

	// alice acts after the sweep sampled the clock but before it stands.
	require.True(t, table.Stand("alice"))

	_, ok := table.ForceStandIfExpired(sweepAt)
	assert.False(t, ok)
	assert.Equal(t, HandPlaying, table.Hands("bob")[0].Status)
	assert.Equal(t, 1, table.TurnPointer())

	clock.Advance(31 * time.Second).MustWait(ctx)
	stood, ok := table.ForceStandIfExpired(clock.Now())
	require.True(t, ok)
	assert.Equal(t, "bob", stood)
	assert.Equal(t, StatusFinished, table.Status())
}

func TestWaitExpiry(t *testing.T) {
	table, clock := newTestTable(t, "", player{"alice", 10})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock.Advance(DefaultWaitTimeout).MustWait(ctx)
	assert.False(t, table.IsWaitExpired(clock.Now()))
	clock.Advance(time.Second).MustWait(ctx)
	assert.True(t, table.IsWaitExpired(clock.Now()))
	assert.False(t, table.IsCurrentTurnExpired(clock.Now()), "waiting tables have no turn")
}

func TestCancelAndLeave(t *testing.T) {
	table, _ := newTestTable(t, "", player{"alice", 100}, player{"bob", 50})

	_, ok := table.RemovePlayer("alice")
	assert.False(t, ok, "host cannot leave")

	bet, ok := table.RemovePlayer("bob")
	require.True(t, ok)
	assert.Equal(t, int64(50), bet)
	assert.False(t, table.HasPlayer("bob"))

	refunds, ok := table.Cancel()
	require.True(t, ok)
	assert.Equal(t, map[string]int64{"alice": 100}, refunds)
	assert.Equal(t, StatusFinished, table.Status())
	assert.True(t, table.Cancelled())

	_, ok = table.TakeResults()
	assert.False(t, ok, "cancelled tables report no results")
	_, ok = table.Cancel()
	assert.False(t, ok)
}

func TestCancelPlayingTableFails(t *testing.T) {
	table, _ := newTestTable(t, "2s Th 3d 7c", player{"alice", 10})
	require.True(t, table.Start())
	_, ok := table.Cancel()
	assert.False(t, ok)
}

func TestSnapshotHidesDealerHoleCard(t *testing.T) {
	table, _ := newTestTable(t, "8s Td 8h 7c", player{"alice", 10})
	require.True(t, table.Start())

	s := table.Snapshot()
	assert.Equal(t, StatusPlaying, s.Status)
	assert.Equal(t, deck.MustParseCards("Td"), s.Dealer.Cards)
	assert.Equal(t, 1, s.Dealer.Hidden)
	assert.Equal(t, 10, s.Dealer.Value)

	require.NotNil(t, s.Turn)
	assert.Equal(t, "alice", s.Turn.Player)
	assert.Equal(t, []Action{ActionHit, ActionStand, ActionSplit}, s.Turn.Actions)

	require.Len(t, s.Players, 1)
	assert.Equal(t, 16, s.Players[0].Hands[0].Value)

	require.True(t, table.Stand("alice"))
	s = table.Snapshot()
	assert.Equal(t, StatusFinished, s.Status)
	assert.Equal(t, 0, s.Dealer.Hidden)
	assert.Equal(t, 17, s.Dealer.Value)
	assert.Nil(t, s.Turn)
	assert.Len(t, s.Results, 1)
}
