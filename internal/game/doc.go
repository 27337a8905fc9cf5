// Package game implements the blackjack engine: hands, the per-table turn
// state machine, dealer resolution and the timeout policy.
//
// The main type is Table, which owns one Shoe, the dealer's Hand and every
// player Hand. A Table moves through three states:
//
//	waiting -> playing -> finished
//
// Players join while the table is waiting. Start deals two cards to every
// player and the dealer and flattens the turn order to one Seat per player.
// Splitting a pair inserts the new hand's Seat directly after the current
// one, so split hands are played depth-first before the turn moves on.
//
// # Basic Usage
//
//	t := game.NewTable("chat-1", "alice", game.Options{})
//	t.AddPlayer("alice", 100)
//	t.AddPlayer("bob", 50)
//	t.Start()
//	t.Hit("alice")
//	t.Stand("alice")
//	...
//	if results, ok := t.TakeResults(); ok {
//	    // settle results against the ledger
//	}
//
// # Failure semantics
//
// Every mutating method returns false and leaves the table untouched when
// its preconditions do not hold (wrong turn, wrong state, table full). A
// Table is safe for concurrent use; each method takes the table's lock.
//
// # Deterministic Testing
//
// Inject a stacked shoe and a quartz mock clock:
//
//	shoe := deck.NewStackedShoe(randutil.New(1), deck.MustParseCards("As Kd 9c 7h")...)
//	t := game.NewTable("chat-1", "alice", game.Options{Shoe: shoe, Clock: quartz.NewMock(t)})
package game
