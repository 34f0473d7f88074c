package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yegors/tracon-sim/internal/command"
	"github.com/yegors/tracon-sim/internal/simulation"
	"github.com/yegors/tracon-sim/pkg/logger"
)

// Message types
const (
	MessageTypeSnapshot        = "snapshot"
	MessageTypeAlert           = "alert"
	MessageTypeCommandResult   = "command_result"
	MessageTypeAircraftRemoved = "aircraft_removed"
	MessageTypeSessionEnded    = "session_ended"
	MessageTypeError           = "error"

	// MessageTypeCommand is sent by clients
	MessageTypeCommand = "command"
)

const (
	writeWait   = 10 * time.Second
	commandWait = 5 * time.Second
	sendBuffer  = 256
)

// Message is the envelope for every frame on the socket
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// CommandRequest is the data of a client command message
type CommandRequest struct {
	RequestID  string          `json:"request_id,omitempty"`
	AircraftID string          `json:"aircraft_id"`
	Command    command.Command `json:"command"`
}

// CommandResponse answers a CommandRequest, and is broadcast for every
// command applied in a tick
type CommandResponse struct {
	RequestID  string         `json:"request_id,omitempty"`
	AircraftID string         `json:"aircraft_id"`
	Command    string         `json:"command"`
	Result     command.Result `json:"result"`
	SimTime    time.Duration  `json:"sim_time,omitempty"`
}

// Commander applies commands received from clients
type Commander interface {
	ApplyCommand(ctx context.Context, id string, cmd command.Command) (command.Result, error)
}

// Config controls the hub
type Config struct {
	SnapshotEvery int // ticks between broadcast snapshots
}

// Client is one connected socket
type Client struct {
	conn   *websocket.Conn
	send   chan *Message
	server *Server
	mu     sync.Mutex
	closed bool
}

// Server is the hub fanning session frames out to every client. It is a
// simulation.Sink.
type Server struct {
	cfg        Config
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	upgrader   websocket.Upgrader
	logger     *logger.Logger
	mu         sync.RWMutex
	commander  Commander

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a hub. Commands from clients are rejected until a
// Commander is set.
func NewServer(cfg Config, log *logger.Logger) *Server {
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, sendBuffer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		logger: log.Named("web-socket"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetCommander sets the target for client commands
func (s *Server) SetCommander(c Commander) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commander = c
}

// ClientCount returns the number of registered clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Run serves the hub until ctx is cancelled, then disconnects every client
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting WebSocket server")
	defer s.cancel()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			for client := range s.clients {
				delete(s.clients, client)
				client.shutdown()
			}
			s.mu.Unlock()
			s.logger.Info("WebSocket server stopped")
			return nil

		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client registered", logger.Int("client_count", clientCount))

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.shutdown()
			}
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client unregistered", logger.Int("client_count", clientCount))

		case message := <-s.broadcast:
			s.mu.Lock()
			for client := range s.clients {
				if !client.SendMessage(message) {
					// Slow consumer
					delete(s.clients, client)
					client.shutdown()
				}
			}
			s.mu.Unlock()
		}
	}
}

// HandleConnection upgrades a request and starts the client's pumps
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			logger.Error(err),
			logger.String("remote_addr", r.RemoteAddr))
		return
	}

	s.logger.Debug("Successfully upgraded connection to WebSocket",
		logger.String("remote_addr", r.RemoteAddr))

	client := &Client{
		conn:   conn,
		send:   make(chan *Message, sendBuffer),
		server: s,
	}

	select {
	case s.register <- client:
	case <-s.ctx.Done():
		conn.Close()
		return
	}

	go client.readPump()
	go client.writePump()
}

// Broadcast queues a message for every client. It never blocks; a full
// queue drops the message.
func (s *Server) Broadcast(message *Message) bool {
	select {
	case s.broadcast <- message:
		return true
	default:
		s.logger.Warn("Broadcast queue full, dropping message", logger.String("message_type", message.Type))
		return false
	}
}

// Consume turns a session frame into messages
func (s *Server) Consume(f simulation.Frame) {
	for _, a := range f.Raised {
		s.Broadcast(&Message{Type: MessageTypeAlert, Data: a})
	}
	for _, c := range f.Commands {
		s.Broadcast(&Message{Type: MessageTypeCommandResult, Data: CommandResponse{
			AircraftID: c.AircraftID,
			Command:    c.Command.String(),
			Result:     c.Result,
			SimTime:    c.SimTime,
		}})
	}
	for _, d := range f.Removed {
		s.Broadcast(&Message{Type: MessageTypeAircraftRemoved, Data: d})
	}
	if f.Snapshot != nil && (f.Snapshot.Tick%uint64(s.cfg.SnapshotEvery) == 0 || f.Final != nil) {
		s.Broadcast(&Message{Type: MessageTypeSnapshot, Data: f.Snapshot})
	}
	if f.Final != nil {
		s.Broadcast(&Message{Type: MessageTypeSessionEnded, Data: f.Final})
	}
}

// handleCommand applies a client command and answers the issuing client only
func (c *Client) handleCommand(raw json.RawMessage) {
	var req CommandRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.SendMessage(&Message{Type: MessageTypeError, Data: map[string]string{"error": "invalid command: " + err.Error()}})
		return
	}

	c.server.mu.RLock()
	commander := c.server.commander
	c.server.mu.RUnlock()

	resp := CommandResponse{RequestID: req.RequestID, AircraftID: req.AircraftID, Command: req.Command.String()}
	if commander == nil {
		resp.Result = command.Result{Status: command.Rejected, Reason: "commands are not accepted"}
		c.SendMessage(&Message{Type: MessageTypeCommandResult, Data: resp})
		return
	}

	ctx, cancel := context.WithTimeout(c.server.ctx, commandWait)
	defer cancel()
	res, err := commander.ApplyCommand(ctx, req.AircraftID, req.Command)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		res = command.Result{Status: command.Rejected, Reason: err.Error()}
	}
	resp.Result = res
	c.SendMessage(&Message{Type: MessageTypeCommandResult, Data: resp})
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.ctx.Done():
		}
		c.conn.Close()
	}()

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Error("WebSocket read error", logger.Error(err))
			}
			return
		}

		var message struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			c.server.logger.Error("Failed to parse WebSocket message", logger.Error(err))
			continue
		}

		c.server.logger.Debug("Received WebSocket message",
			logger.String("type", message.Type),
			logger.String("client", c.conn.RemoteAddr().String()))

		switch message.Type {
		case MessageTypeCommand:
			// The result arrives after the next tick; keep reading meanwhile.
			go c.handleCommand(message.Data)
		default:
			c.SendMessage(&Message{Type: MessageTypeError, Data: map[string]string{"error": "unknown message type " + message.Type}})
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		data, err := json.Marshal(message)
		if err != nil {
			c.server.logger.Error("Failed to marshal message", logger.Error(err))
			continue
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// SendMessage queues a message for this client. It returns false when the
// client is closed or its queue is full.
func (c *Client) SendMessage(message *Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// shutdown closes the send queue, which ends the write pump
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
