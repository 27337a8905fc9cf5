package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lox/blackjack/internal/ledger"
	"github.com/lox/blackjack/internal/registry"
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	id          string
	conn        *websocket.Conn
	send        chan *Message
	playerID    string
	chatID      string
	logger      *log.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.RWMutex
	closeOnce   sync.Once
	gameService *GameService
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, logger *log.Logger, gameService *GameService) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()

	return &Connection{
		id:          id,
		conn:        conn,
		send:        make(chan *Message, 256),
		logger:      logger.WithPrefix("conn").With("conn", id),
		ctx:         ctx,
		cancel:      cancel,
		gameService: gameService,
	}
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string { return c.id }

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Done is closed once the connection has shut down.
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.cancel()
		close(c.send)
		c.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// SendMessage queues a message for the client. A client that cannot keep up
// is disconnected.
func (c *Connection) SendMessage(msg *Message) error {
	c.mu.RLock()
	if c.ctx.Err() != nil {
		c.mu.RUnlock()
		return ErrConnectionClosed
	}

	select {
	case c.send <- msg:
		c.mu.RUnlock()
		return nil
	default:
		c.mu.RUnlock()
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// SetPlayer associates this connection with a player
func (c *Connection) SetPlayer(playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID = playerID
}

// GetPlayer returns the associated player ID
func (c *Connection) GetPlayer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

// SetChat binds this connection to the table in chatID
func (c *Connection) SetChat(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatID = chatID
}

// GetChat returns the bound chat
func (c *Connection) GetChat() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chatID
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

var ErrConnectionClosed = errors.New("connection closed")

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes incoming messages from the client
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type, "player", c.GetPlayer())

	if msg.Type == MessageTypeAuth {
		var data AuthData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, "invalid_message", "Failed to parse auth data")
			return
		}
		c.handleAuth(msg, data)
		return
	}

	player := c.GetPlayer()
	if player == "" {
		c.sendError(msg, "not_authenticated", "Must authenticate first")
		return
	}

	// Requests finish against the ledger even if the client goes away.
	ctx := context.WithoutCancel(c.ctx)
	gs := c.gameService

	switch msg.Type {
	case MessageTypeListTables:
		c.reply(msg, MessageTypeTableList, TableListData{Tables: gs.ListTables()})

	case MessageTypeBalance:
		stats, err := gs.Balance(ctx, player)
		if err != nil {
			c.sendFailure(msg, err)
			return
		}
		c.reply(msg, MessageTypeBalance, BalanceData{Stats: stats})

	case MessageTypeHistory:
		var data HistoryRequestData
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				c.sendError(msg, "invalid_message", "Failed to parse history request")
				return
			}
		}
		entries, err := gs.History(ctx, player, data.Limit)
		if err != nil {
			c.sendFailure(msg, err)
			return
		}
		c.reply(msg, MessageTypeHistory, HistoryData{Player: player, Entries: entries})

	case MessageTypeCreateTable, MessageTypeJoinTable, MessageTypeLeaveTable,
		MessageTypeStartGame, MessageTypeHit, MessageTypeStand, MessageTypeSplit,
		MessageTypeCancelTable:
		var data TableRequestData
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.ChatID == "" {
			c.sendError(msg, "invalid_message", "Failed to parse table request")
			return
		}
		c.handleTableRequest(ctx, msg, player, data)

	default:
		c.sendError(msg, "unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
}

func (c *Connection) handleAuth(msg *Message, data AuthData) {
	c.logger.Info("Auth request", "playerName", data.PlayerName)

	if data.PlayerName == "" {
		c.sendError(msg, "invalid_auth", "Player name required")
		return
	}

	c.SetPlayer(data.PlayerName)
	c.reply(msg, MessageTypeAuthResponse, AuthResponseData{
		Success:  true,
		PlayerID: data.PlayerName,
	})
}

// handleTableRequest routes a table intent. Successful mutations are
// published to every connection bound to the chat by the notifier, so only
// failures are answered directly.
func (c *Connection) handleTableRequest(ctx context.Context, msg *Message, player string, data TableRequestData) {
	gs := c.gameService
	var err error

	// Bind before create/join so the first snapshot reaches this connection.
	// A failed attempt restores the table the player is still seated at.
	prev := c.GetChat()

	switch msg.Type {
	case MessageTypeCreateTable:
		c.SetChat(data.ChatID)
		if _, err = gs.CreateTable(ctx, data.ChatID, player, data.Bet); err != nil {
			c.SetChat(prev)
		}
	case MessageTypeJoinTable:
		c.SetChat(data.ChatID)
		if _, err = gs.JoinTable(ctx, data.ChatID, player, data.Bet); err != nil {
			c.SetChat(prev)
		}
	case MessageTypeLeaveTable:
		if err = gs.LeaveTable(ctx, data.ChatID, player); err == nil {
			c.SetChat("")
		}
	case MessageTypeStartGame:
		_, err = gs.StartGame(ctx, data.ChatID, player)
	case MessageTypeHit:
		_, err = gs.Hit(ctx, data.ChatID, player)
	case MessageTypeStand:
		_, err = gs.Stand(ctx, data.ChatID, player)
	case MessageTypeSplit:
		_, err = gs.Split(ctx, data.ChatID, player)
	case MessageTypeCancelTable:
		err = gs.CancelTable(ctx, data.ChatID, player)
	}

	if err != nil {
		c.logger.Debug("Table request rejected", "type", msg.Type, "chat", data.ChatID, "player", player, "error", err)
		c.sendFailure(msg, err)
	}
}

func (c *Connection) reply(req *Message, t MessageType, data any) {
	msg, err := NewMessage(t, data)
	if err != nil {
		c.logger.Error("Failed to create message", "type", t, "error", err)
		return
	}
	if req != nil {
		msg.RequestID = req.RequestID
	}
	_ = c.SendMessage(msg)
}

// sendError sends an error message to the client
func (c *Connection) sendError(req *Message, code, message string) {
	c.reply(req, MessageTypeError, ErrorData{Code: code, Message: message})
}

func (c *Connection) sendFailure(req *Message, err error) {
	c.sendError(req, errorCode(err), err.Error())
}

// errorCode maps service errors onto stable wire codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, registry.ErrTableNotFound):
		return "table_not_found"
	case errors.Is(err, registry.ErrTableExists):
		return "table_exists"
	case errors.Is(err, registry.ErrPlayerBusy):
		return "player_busy"
	case errors.Is(err, ErrBetTooSmall), errors.Is(err, ErrBetTooLarge):
		return "invalid_bet"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrNotHost):
		return "not_host"
	case errors.Is(err, ErrNotAtTable):
		return "not_at_table"
	case errors.Is(err, ErrActionRejected):
		return "action_rejected"
	default:
		return "internal_error"
	}
}
