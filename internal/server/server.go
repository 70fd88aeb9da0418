package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ahdev/chatgate/internal/auth"
	"github.com/ahdev/chatgate/internal/chat"
	"github.com/ahdev/chatgate/internal/server/middleware"
	"github.com/ahdev/chatgate/internal/store"
	"github.com/ahdev/chatgate/pkg/config"
	"github.com/ahdev/chatgate/pkg/state"
	"github.com/ahdev/chatgate/pkg/transport"
	"github.com/coder/websocket"
)

type App struct {
	logger        *slog.Logger
	manager       state.Manager
	store         store.MessageStore
	authenticator *auth.Authenticator
	wg            sync.WaitGroup
	http          *http.Server
	config        *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, manager state.Manager, msgStore store.MessageStore, authenticator *auth.Authenticator) *App {
	app := &App{
		logger:        logger,
		manager:       manager,
		store:         msgStore,
		authenticator: authenticator,
		config:        cfg,
		ctx:           rootCtx,
	}

	mux := http.NewServeMux()

	connCounter := middleware.UserConnectionCounter(manager.UserConnectionCount)
	// Create a cycler function that closes over the manager and logger.
	connCycler := func(userID int64) {
		oldest, found := manager.FindOldestUserConnection(userID)
		if found {
			logger.Info("Cycling connection: closing oldest", slog.Int64("userID", userID), slog.String("connID", oldest.ID.String()))
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	identity := middleware.NewIdentityResolver(logger, authenticator)
	mux.Handle("/ws",
		middleware.Chain(http.HandlerFunc(app.upgradeHandler),
			middleware.RequestMetadataMiddleware(),
			identity,
			middleware.NewRequestLogger(app.logger),
			middleware.NewConnectionLimiter(
				logger,
				connCounter,
				connCycler,
				app.config.Server.ConnectionLimit,
			),
		),
	)

	apiChain := func(h http.HandlerFunc, extra ...middleware.Middleware) http.Handler {
		mws := []middleware.Middleware{
			middleware.RequestMetadataMiddleware(),
			identity,
			middleware.NewRequestLogger(app.logger),
			middleware.RequireAuth(logger),
		}
		mws = append(mws, extra...)
		return middleware.Chain(h, mws...)
	}

	mux.Handle("GET /api/messages", apiChain(app.handleGetMessages))
	mux.Handle("DELETE /api/messages", apiChain(app.handleClearMessages, middleware.RequirePermission(logger, state.PermChatAdmin)))
	mux.Handle("GET /api/users/online", apiChain(app.handleOnlineUsers))

	app.http = &http.Server{Addr: app.config.Server.Address, Handler: mux, BaseContext: func(l net.Listener) context.Context {
		return app.ctx
	}}

	return app
}

// Handler exposes the configured mux, mainly for tests that mount the app
// on an httptest server.
func (a *App) Handler() http.Handler {
	return a.http.Handler
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.Int64("userID", reqMeta.Identity.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	// Anonymous is a valid handshake outcome, but no anonymous chat: the
	// connection is torn down immediately, with no status or reason that
	// would reveal why.
	if !reqMeta.Authenticated {
		connLogger.Info("Closing anonymous connection")
		wsConn.Close(websocket.StatusNormalClosure, "")
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig{
			ReadTimeout: a.config.Transport.ReadTimeout,
			SendBuffer:  a.config.Transport.SendBuffer,
		},
		nil,
		nil,
		a.logger,
	)

	sess := chat.NewSession(a.logger, conn, reqMeta.Identity, a.manager, a.store, a.config.Chat.Room, a.config.Chat.MaxMessageLength)
	if err := sess.Run(); err != nil {
		connLogger.Error("Failed to start session", slog.Any("error", err))
		conn.Close(err)
		return
	}

	connLogger.Info("User connection fully established", slog.String("username", reqMeta.Identity.Username))
	<-conn.Done()
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, conn := range a.manager.AllConnections() {
		conn.Transport.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
