package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/config"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
)

const shutdownTimeout = 5 * time.Second

type coordinator interface {
	Join(ctx context.Context, sessionID, connID string) (entity.Mark, error)
	Leave(ctx context.Context, sessionID, epoch string, mark entity.Mark) error
	MakeMove(ctx context.Context, sessionID, epoch string, cell int, mark entity.Mark) error
	EnforcesTurns() bool
}

type Server struct {
	logger      *slog.Logger
	coordinator coordinator
	hub         *Hub
	conf        config.Websocket
	upgrader    websocket.Upgrader

	handlers map[string]func(ctx context.Context, conn *connection, message *Message) error
}

func New(logger *slog.Logger, conf config.Websocket, hub *Hub, coordinator coordinator) *Server {
	server := &Server{
		logger:      logger.With("component", "websocket"),
		coordinator: coordinator,
		hub:         hub,
		conf:        conf,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(conf.AllowedOrigins),
		},

		handlers: make(map[string]func(context.Context, *connection, *Message) error),
	}

	server.handlers[entity.ActionJoinGame] = server.handleJoinGame
	server.handlers[entity.ActionMakeMove] = server.handleMakeMove

	return server
}

// checkOrigin - nil keeps gorilla's same-origin check; "*" allows any origin.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

func (that *Server) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/ws", that.serveWS)

	return router
}

// Start - starts WebSocket server and stops it when ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           that.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)

	// hijacked connections are not tracked by http.Server
	that.hub.closeAll()

	if err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

func (that *Server) serveWS(writer http.ResponseWriter, req *http.Request, _ httprouter.Params) {
	log := that.logger.With("method", "serveWS")

	ws, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Warn("failed to upgrade connection", "error", err)
		return
	}

	conn := newConnection(ws, that.conf.SendBuffer)
	log = log.With("conn_id", conn.id)

	that.hub.register(conn)
	go conn.writePump()

	log.Info("WebSocket connection established")

	that.handleMessages(req.Context(), conn)

	seat := that.hub.unregister(conn)
	conn.close()

	if seat.joined() {
		// released even when the request context is done
		if err := that.coordinator.Leave(context.WithoutCancel(req.Context()), seat.SessionID, seat.Epoch, seat.Marker); err != nil {
			log.Error("failed to release seat", "session_id", seat.SessionID, "error", err)
		}
	}

	log.Info("WebSocket connection closed", "session_id", seat.SessionID)
}

// handleMessages - processes messages from the client until the connection fails.
func (that *Server) handleMessages(ctx context.Context, conn *connection) {
	log := that.logger.With("method", "handleMessages", "conn_id", conn.id)

	conn.conn.SetReadLimit(that.conf.ReadLimit)
	_ = conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("connection lost", "error", err)
			}

			return
		}

		var message Message
		if err = json.Unmarshal(data, &message); err != nil {
			err = fmt.Errorf("%w: %w", errMalformedMessage, err)
		} else if handler, ok := that.handlers[message.Action]; ok {
			err = handler(ctx, conn, &message)
		} else {
			log.Debug("unknown action", "action", message.Action)
			continue
		}

		if err == nil {
			continue
		}

		log.Debug("message dropped", "action", message.Action, "error", err)

		if errors.Is(err, errMalformedMessage) {
			conn.decodeErrors++
			if that.conf.MaxDecodeErrors > 0 && conn.decodeErrors >= that.conf.MaxDecodeErrors {
				log.Warn("too many malformed messages, closing connection")
				return
			}
		}
	}
}
