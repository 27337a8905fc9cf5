package game

import (
	"io"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/blackjack/internal/deck"
	"github.com/lox/blackjack/internal/gameid"
	"github.com/lox/blackjack/internal/randutil"
)

// Status represents the lifecycle state of a table
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// String returns the string representation of a table status
func (s Status) String() string {
	return string(s)
}

const (
	DefaultMaxPlayers  = 7
	DefaultTurnTimeout = 30 * time.Second
	DefaultWaitTimeout = 300 * time.Second

	// DealerStandsOn is the total at which the dealer stops drawing. Soft
	// and hard 17 are treated alike.
	DealerStandsOn = 17
)

// Options configures a new Table. Zero values pick the defaults.
type Options struct {
	ID          string
	MaxPlayers  int
	TurnTimeout time.Duration
	WaitTimeout time.Duration
	Clock       quartz.Clock
	Shoe        *deck.Shoe
	Logger      *log.Logger
}

// Seat addresses one hand in the turn order.
type Seat struct {
	Player string `json:"player"`
	Hand   HandID `json:"hand"`
}

// Result is the terminal outcome of one player hand.
type Result struct {
	Player  string     `json:"player"`
	Hand    HandID     `json:"hand"`
	Stake   int64      `json:"stake"`
	Outcome HandStatus `json:"outcome"`
	Value   int        `json:"value"`
}

// Table is one multiplayer blackjack round hosted in a chat.
type Table struct {
	mu sync.Mutex

	id     string
	chatID string
	host   string

	maxPlayers  int
	turnTimeout time.Duration
	waitTimeout time.Duration

	players     []string
	playerBets  map[string]int64
	hands       map[HandID]*Hand
	playerHands map[string][]HandID
	nextHandID  HandID

	turnOrder   []Seat
	turnPointer int

	dealer *Hand
	shoe   *deck.Shoe

	status       Status
	cancelled    bool
	createdAt    time.Time
	lastActionAt time.Time

	results  []Result
	reported bool

	clock  quartz.Clock
	logger *log.Logger
}

// NewTable creates a waiting table for chatID hosted by host.
func NewTable(chatID, host string, opts Options) *Table {
	if opts.ID == "" {
		opts.ID = gameid.Generate()
	}
	if opts.MaxPlayers <= 0 {
		opts.MaxPlayers = DefaultMaxPlayers
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = DefaultTurnTimeout
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultWaitTimeout
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Shoe == nil {
		opts.Shoe = deck.NewShoe(randutil.New(randutil.NewSeed()))
	}
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	now := opts.Clock.Now()
	t := &Table{
		id:           opts.ID,
		chatID:       chatID,
		host:         host,
		maxPlayers:   opts.MaxPlayers,
		turnTimeout:  opts.TurnTimeout,
		waitTimeout:  opts.WaitTimeout,
		players:      make([]string, 0, opts.MaxPlayers),
		playerBets:   make(map[string]int64),
		hands:        make(map[HandID]*Hand),
		playerHands:  make(map[string][]HandID),
		shoe:         opts.Shoe,
		status:       StatusWaiting,
		createdAt:    now,
		lastActionAt: now,
		clock:        opts.Clock,
		logger:       opts.Logger.WithPrefix("table").With("table", opts.ID, "chat", chatID),
	}
	t.dealer = newHand(t.allocHandID(), "", 0)
	return t
}

func (t *Table) allocHandID() HandID {
	id := t.nextHandID
	t.nextHandID++
	return id
}

// ID returns the table's unique round identifier.
func (t *Table) ID() string { return t.id }

// ChatID returns the chat the table was created in.
func (t *Table) ChatID() string { return t.chatID }

// Host returns the player who created the table.
func (t *Table) Host() string { return t.host }

// MaxPlayers returns the seat capacity.
func (t *Table) MaxPlayers() int { return t.maxPlayers }

// Status returns the current lifecycle state.
func (t *Table) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Cancelled reports whether the table finished through cancellation.
func (t *Table) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Players returns the players in join order.
func (t *Table) Players() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.players)
}

// HasPlayer reports whether player has joined this table.
func (t *Table) HasPlayer(player string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.playerBets[player]
	return ok
}

// Stake returns the total amount player has riding on the table, including
// split hands.
func (t *Table) Stake(player string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playerBets[player]
}

// CreatedAt returns when the table was created.
func (t *Table) CreatedAt() time.Time {
	return t.createdAt
}

// TurnPointer returns the index into the turn order of the seat on turn.
func (t *Table) TurnPointer() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.turnPointer
}

// TurnOrder returns a copy of the flattened turn order.
func (t *Table) TurnOrder() []Seat {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.turnOrder)
}

// Hands returns copies of player's hands in the order they were created.
func (t *Table) Hands(player string) []*Hand {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := t.playerHands[player]
	hands := make([]*Hand, 0, len(ids))
	for _, id := range ids {
		hands = append(hands, t.hands[id].clone())
	}
	return hands
}

// DealerHand returns a copy of the dealer's hand.
func (t *Table) DealerHand() *Hand {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dealer.clone()
}

// CurrentPlayer returns the player on turn, or false once the turn order is
// exhausted or the round has not started.
func (t *Table) CurrentPlayer() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	seat, ok := t.currentSeat()
	return seat.Player, ok
}

// CurrentHand returns a copy of the hand on turn.
func (t *Table) CurrentHand() (*Hand, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.currentHand()
	if h == nil {
		return nil, false
	}
	return h.clone(), true
}

func (t *Table) currentSeat() (Seat, bool) {
	if t.status != StatusPlaying || t.turnPointer >= len(t.turnOrder) {
		return Seat{}, false
	}
	return t.turnOrder[t.turnPointer], true
}

func (t *Table) currentHand() *Hand {
	seat, ok := t.currentSeat()
	if !ok {
		return nil
	}
	return t.hands[seat.Hand]
}

// handOnTurn returns the current hand iff it belongs to player and can act.
func (t *Table) handOnTurn(player string) *Hand {
	h := t.currentHand()
	if h == nil || h.Player != player || h.Status != HandPlaying {
		return nil
	}
	return h
}

// IsCurrentTurnExpired reports whether the player on turn has been idle for
// longer than the turn timeout.
func (t *Table) IsCurrentTurnExpired(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.turnExpired(now)
}

func (t *Table) turnExpired(now time.Time) bool {
	return t.status == StatusPlaying && now.Sub(t.lastActionAt) > t.turnTimeout
}

// IsWaitExpired reports whether a waiting table has outlived the wait-room
// timeout.
func (t *Table) IsWaitExpired(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status == StatusWaiting && now.Sub(t.createdAt) > t.waitTimeout
}

// TurnDeadline returns when the current turn expires.
func (t *Table) TurnDeadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActionAt.Add(t.turnTimeout)
}

// TakeResults returns the round's results exactly once after the table has
// finished. Later calls, and calls on cancelled tables, return false.
func (t *Table) TakeResults() ([]Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusFinished || t.cancelled || t.reported {
		return nil, false
	}
	t.reported = true
	return slices.Clone(t.results), true
}

// Results returns the round's results without consuming them.
func (t *Table) Results() []Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.results)
}
