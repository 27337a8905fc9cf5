package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/blackjack/internal/game"
)

// Server relays table state to WebSocket clients and forwards their intents
// to the GameService. Clients are grouped by the chat they are bound to.
type Server struct {
	addr        string
	upgrader    websocket.Upgrader
	connections map[*Connection]bool
	logger      *log.Logger
	mu          sync.RWMutex
	gameService *GameService
}

var _ Notifier = (*Server)(nil)

// NewServer creates a new WebSocket server
func NewServer(addr string, logger *log.Logger) *Server {
	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			// Chat front-ends connect from arbitrary origins.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]bool),
		logger:      logger.WithPrefix("server"),
	}
}

// SetGameService sets the game service and registers the server as its
// notifier.
func (s *Server) SetGameService(gameService *GameService) {
	s.gameService = gameService
	gameService.SetNotifier(s)
}

// Handler returns the HTTP routes served by this server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting WebSocket server", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Stop()
	return err
}

// Stop closes all client connections.
func (s *Server) Stop() {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for conn := range s.connections {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (s *Server) register(conn *Connection) {
	s.mu.Lock()
	s.connections[conn] = true
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Info("Client connected", "conn", conn.ID(), "total", total)
}

// unregister drops conn and, if its player was waiting at a table they can
// still leave, refunds them. Hosts and players in a running round are left
// to the sweeps.
func (s *Server) unregister(conn *Connection) {
	s.mu.Lock()
	if _, ok := s.connections[conn]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.connections, conn)
	total := len(s.connections)
	s.mu.Unlock()

	player, chatID := conn.GetPlayer(), conn.GetChat()
	if player != "" && chatID != "" && s.gameService != nil && !s.playerConnected(player) {
		if err := s.gameService.LeaveTable(context.Background(), chatID, player); err == nil {
			s.logger.Info("Removed disconnected player", "player", player, "chat", chatID)
		}
	}
	s.logger.Info("Client disconnected", "conn", conn.ID(), "total", total)
}

func (s *Server) playerConnected(player string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.connections {
		if conn.GetPlayer() == player {
			return true
		}
	}
	return false
}

// handleWebSocket handles WebSocket upgrade requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.gameService == nil {
		http.Error(w, "game service unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, s.logger, s.gameService)
	s.register(client)
	client.Start()

	go func() {
		<-client.Done()
		s.unregister(client)
	}()
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

// BroadcastToChat sends a message to all connections bound to chatID
func (s *Server) BroadcastToChat(chatID string, msg *Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for conn := range s.connections {
		if conn.GetChat() != chatID {
			continue
		}
		if err := conn.SendMessage(msg); err != nil {
			s.logger.Warn("Failed to send message to client", "error", err, "player", conn.GetPlayer())
			continue
		}
		count++
	}

	s.logger.Debug("Broadcasted message to chat", "chat", chatID, "type", msg.Type, "recipients", count)
}

// TableUpdated broadcasts a table snapshot to its chat.
func (s *Server) TableUpdated(snapshot game.Snapshot) {
	s.broadcast(snapshot.ChatID, MessageTypeTableState, snapshot)
}

// RoundSettled broadcasts the settlement of a finished round.
func (s *Server) RoundSettled(settlement Settlement) {
	s.broadcast(settlement.ChatID, MessageTypeRoundResult, settlement)
}

// TableClosed tells the chat the table is gone and unbinds its connections.
func (s *Server) TableClosed(data TableClosedData) {
	s.broadcast(data.ChatID, MessageTypeTableClosed, data)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.connections {
		if conn.GetChat() == data.ChatID {
			conn.SetChat("")
		}
	}
}

func (s *Server) broadcast(chatID string, t MessageType, data any) {
	msg, err := NewMessage(t, data)
	if err != nil {
		s.logger.Error("Failed to create message", "type", t, "error", err)
		return
	}
	s.BroadcastToChat(chatID, msg)
}
