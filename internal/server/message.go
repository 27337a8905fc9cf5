package server

import (
	"encoding/json"
	"time"

	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/ledger"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Client → Server Messages

type AuthData struct {
	PlayerName string `json:"playerName"`
}

// TableRequestData addresses a table by chat. Bet is only read by
// create_table and join_table.
type TableRequestData struct {
	ChatID string `json:"chatId"`
	Bet    int64  `json:"bet,omitempty"`
}

type HistoryRequestData struct {
	Limit int `json:"limit,omitempty"`
}

// Server → Client Messages

type AuthResponseData struct {
	Success  bool   `json:"success"`
	PlayerID string `json:"playerId,omitempty"`
	Error    string `json:"error,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TableInfo struct {
	ChatID      string      `json:"chatId"`
	TableID     string      `json:"tableId"`
	Host        string      `json:"host"`
	PlayerCount int         `json:"playerCount"`
	MaxPlayers  int         `json:"maxPlayers"`
	Status      game.Status `json:"status"`
}

type TableListData struct {
	Tables []TableInfo `json:"tables"`
}

type BalanceData struct {
	Stats ledger.Stats `json:"stats"`
}

type HistoryData struct {
	Player  string         `json:"player"`
	Entries []ledger.Entry `json:"entries"`
}

// CloseReason explains why a table left the registry.
type CloseReason string

const (
	CloseReasonFinished  CloseReason = "finished"
	CloseReasonCancelled CloseReason = "cancelled"
	CloseReasonExpired   CloseReason = "expired"
)

type TableClosedData struct {
	ChatID  string      `json:"chatId"`
	TableID string      `json:"tableId"`
	Reason  CloseReason `json:"reason"`
}

// Settlement is the terminal report of one round after the ledger has been
// updated.
type Settlement struct {
	ChatID  string           `json:"chatId"`
	TableID string           `json:"tableId"`
	Dealer  game.DealerView  `json:"dealer"`
	Lines   []SettlementLine `json:"lines"`
}

// SettlementLine is one settled hand. Error is set when the ledger could not
// record it; the outcome stands regardless.
type SettlementLine struct {
	Player  string         `json:"player"`
	Hand    game.HandID    `json:"hand"`
	Stake   int64          `json:"stake"`
	Outcome ledger.Outcome `json:"outcome"`
	Value   int            `json:"value"`
	Payout  int64          `json:"payout"`
	Balance int64          `json:"balance"`
	Error   string         `json:"error,omitempty"`
}
