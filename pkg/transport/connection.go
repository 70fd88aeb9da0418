package transport

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// callback executed when a message is received.
type MessageHandler func(ctx context.Context, connID uuid.UUID, msg []byte)

type OnCloseHandler func(connID uuid.UUID, err error)

type ConnectionConfig struct {
	// ReadTimeout bounds how long a single read may block. Zero disables
	// the bound; idle connections then stay open until the peer closes.
	ReadTimeout time.Duration
	// SendBuffer is the capacity of the outbound queue.
	SendBuffer int
}

// Connection represents a single, thread-safe WebSocket connection.
type Connection struct {
	id     uuid.UUID
	conn   *websocket.Conn
	config ConnectionConfig
	send   chan []byte

	onMessage MessageHandler
	onClose   OnCloseHandler

	done      chan struct{}
	wg        *sync.WaitGroup
	ctx       context.Context
	closeOnce sync.Once
	cancel    context.CancelFunc

	logger *slog.Logger
}

func NewConnection(parentCtx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, config ConnectionConfig, onMessage MessageHandler, onClose OnCloseHandler, logger *slog.Logger) *Connection {
	id := uuid.New()
	connCtx, cancel := context.WithCancel(parentCtx)
	connLogger := logger.With(slog.String("connID", id.String()))

	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}

	// The WaitGroup slot is claimed here rather than in Run: connections are
	// reachable through the registry (shutdown, cycling, drop policy) and can
	// be closed before Run ever starts the pumps. Close releases the slot
	// exactly once either way.
	wg.Add(1)

	return &Connection{
		id:        id,
		conn:      conn,
		logger:    connLogger,
		config:    config,
		onMessage: onMessage,
		send:      make(chan []byte, config.SendBuffer),
		done:      make(chan struct{}),
		ctx:       connCtx,
		cancel:    cancel,
		onClose:   onClose,
		wg:        wg,
	}
}

func (c *Connection) Run() {
	go c.readPump()
	go c.writePump()

	c.logger.Info("connection established")
}

// readPump pumps messages from the WebSocket connection to the message handler.
func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		readCtx := c.ctx
		cancelRead := context.CancelFunc(func() {})
		if c.config.ReadTimeout > 0 {
			readCtx, cancelRead = context.WithTimeout(c.ctx, c.config.ReadTimeout)
		}
		typ, r, err := c.conn.Reader(readCtx)
		if err != nil {
			cancelRead()
			readErr = err
			return
		}
		// Ensure we are only handling text or binary messages.
		if typ != websocket.MessageText && typ != websocket.MessageBinary {
			cancelRead()
			continue
		}
		message, err := io.ReadAll(r)
		cancelRead()
		if err != nil {
			readErr = err
			return
		}
		if c.onMessage != nil {
			// Pass a connection-scoped context to the handler.
			c.onMessage(c.ctx, c.id, message)
		}
	}
}

// writePump pumps messages from the send channel to the WebSocket connection.
func (c *Connection) writePump() {
	var writeErr error

	defer func() {
		c.Close(writeErr)
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.conn.Write(c.ctx, websocket.MessageText, message); err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			c.conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

// Send queues a message for the client, blocking until there is buffer
// space or the connection shuts down. It is safe for concurrent use.
func (c *Connection) Send(message []byte) {
	select {
	case c.send <- message:
	case <-c.ctx.Done():
		c.logger.Warn("Attempted to send on a closed connection")
	}
}

// TrySend queues a message without blocking. It reports false when the
// outbound buffer is full or the connection is shutting down, so one slow
// recipient can never stall a publisher.
func (c *Connection) TrySend(message []byte) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// Close gracefully shuts down the connection and its resources. It is safe
// to call from multiple goroutines; teardown runs exactly once.
func (c *Connection) Close(err error) {
	c.closeOnce.Do(func() {
		status := websocket.CloseStatus(err)
		c.logger.Info("Transport connection closing", slog.Any("reason", err), slog.String("status", status.String()))

		c.cancel() // Signal goroutines to stop.
		if c.conn != nil {
			c.conn.Close(websocket.StatusNormalClosure, "")
		}
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		c.wg.Done()
		close(c.done)
		c.logger.Info("Connection closed")
	})
}

// Done returns a channel that is closed when the connection is fully terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// ID returns the unique identifier of the connection.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) SetOnMessageHandler(handler MessageHandler) {
	c.onMessage = handler
}

func (c *Connection) SetOnCloseHandler(handler OnCloseHandler) {
	c.onClose = handler
}
