package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/metrics"
)

const (
	lockStripes = 64
	joinRetries = 2

	expiredMessage = "session expired"
)

var errConnectionGone = errors.New("connection is gone")

type sessionRepo interface {
	GetOrCreate(ctx context.Context, id string) (*entity.Session, error)
	Update(ctx context.Context, id string, fn func(session *entity.Session) error) (*entity.Session, error)
	Evict(ctx context.Context, idleFor time.Duration) ([]*entity.Session, error)
}

type broadcaster interface {
	Subscribe(sessionID, epoch, connID string, mark entity.Mark) bool
	Unicast(connID string, event entity.Event)
	Broadcast(sessionID string, event entity.Event)
	CloseGroup(sessionID, epoch string, event entity.Event)
}

// Coordinator - joins participants to sessions and applies their moves.
// Work on one session is serialized so its broadcasts leave in board order.
type Coordinator struct {
	logger   *slog.Logger
	sessions sessionRepo
	hub      broadcaster
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	enforceTurns bool

	locks [lockStripes]sync.Mutex
}

func NewCoordinator(
	logger *slog.Logger,
	sessions sessionRepo,
	hub broadcaster,
	appMetrics *metrics.Metrics,
	enforceTurns bool,
) *Coordinator {
	return &Coordinator{
		logger: logger.With("component", "coordinator"),

		sessions: sessions,
		hub:      hub,
		metrics:  appMetrics,
		tracer:   otel.Tracer("github.com/rocketscienceinc/tictactoe-rooms/internal/usecase"),

		enforceTurns: enforceTurns,
	}
}

func (that *Coordinator) EnforcesTurns() bool {
	return that.enforceTurns
}

// Join - seats connID in the session, creating it on first use, and tells the connection its marker.
func (that *Coordinator) Join(ctx context.Context, sessionID, connID string) (entity.Mark, error) {
	log := that.logger.With("method", "Join", "session_id", sessionID, "conn_id", connID)

	ctx, span := that.tracer.Start(ctx, "Coordinator.Join", trace.WithAttributes(
		attribute.String("session.id", sessionID),
	))
	defer span.End()

	mark, err := that.join(ctx, sessionID, connID)
	if err != nil {
		result := joinResult(err)
		that.metrics.Joins.WithLabelValues(result).Inc()
		span.SetStatus(codes.Error, err.Error())

		if result == "error" {
			log.Error("failed to join session", "error", err)
		} else {
			log.Info("join refused", "error", err)
		}

		return entity.EmptyCell, err
	}

	that.metrics.Joins.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.String("session.marker", string(mark)))
	log.Debug("joined", "marker", mark)

	return mark, nil
}

func (that *Coordinator) join(ctx context.Context, sessionID, connID string) (entity.Mark, error) {
	if err := entity.ValidateSessionID(sessionID); err != nil {
		return entity.EmptyCell, err
	}

	unlock := that.lock(sessionID)
	defer unlock()

	mark, session, err := that.seat(ctx, sessionID)
	if err != nil {
		return entity.EmptyCell, err
	}

	if !that.hub.Subscribe(sessionID, session.Epoch, connID, mark) {
		if err = that.unseat(ctx, sessionID, session.Epoch, mark); err != nil {
			that.logger.Error("failed to release seat of a gone connection", "session_id", sessionID, "error", err)
		}

		return entity.EmptyCell, fmt.Errorf("%w: %s", errConnectionGone, connID)
	}

	that.hub.Unicast(connID, entity.NewPlayerSymbolEvent(mark))

	return mark, nil
}

// seat - retries when the session is evicted between creation and seating.
func (that *Coordinator) seat(ctx context.Context, sessionID string) (entity.Mark, *entity.Session, error) {
	var err error

	for range joinRetries {
		if _, err = that.sessions.GetOrCreate(ctx, sessionID); err != nil {
			return entity.EmptyCell, nil, fmt.Errorf("failed to get or create session: %w", err)
		}

		var (
			mark    entity.Mark
			session *entity.Session
		)

		session, err = that.sessions.Update(ctx, sessionID, func(draft *entity.Session) error {
			var seatErr error
			mark, seatErr = draft.Seat()

			return seatErr
		})
		if err == nil {
			return mark, session, nil
		}

		if !errors.Is(err, apperror.ErrSessionNotFound) {
			break
		}
	}

	return entity.EmptyCell, nil, fmt.Errorf("failed to seat participant: %w", err)
}

// Leave - frees the seat mark holds in the given epoch of the session.
// A session that expired or was recreated since is left alone.
func (that *Coordinator) Leave(ctx context.Context, sessionID, epoch string, mark entity.Mark) error {
	log := that.logger.With("method", "Leave", "session_id", sessionID, "marker", mark)

	unlock := that.lock(sessionID)
	defer unlock()

	err := that.unseat(ctx, sessionID, epoch, mark)
	switch {
	case err == nil:
		log.Debug("seat released")
		return nil
	case errors.Is(err, apperror.ErrSessionNotFound), errors.Is(err, apperror.ErrStaleSession):
		log.Debug("nothing to release", "error", err)
		return nil
	default:
		log.Error("failed to release seat", "error", err)
		return err
	}
}

func (that *Coordinator) unseat(ctx context.Context, sessionID, epoch string, mark entity.Mark) error {
	_, err := that.sessions.Update(ctx, sessionID, func(session *entity.Session) error {
		if session.Epoch != epoch {
			return apperror.ErrStaleSession
		}

		return session.Unseat(mark)
	})
	if err != nil {
		return fmt.Errorf("failed to release seat: %w", err)
	}

	return nil
}

// MakeMove - places mark on cell and broadcasts the resulting state to the session.
// A rejected move changes nothing and broadcasts nothing. A non-empty epoch must match the session's.
func (that *Coordinator) MakeMove(ctx context.Context, sessionID, epoch string, cell int, mark entity.Mark) error {
	log := that.logger.With("method", "MakeMove", "session_id", sessionID, "cell", cell, "marker", mark)

	ctx, span := that.tracer.Start(ctx, "Coordinator.MakeMove", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("move.cell", cell),
		attribute.String("move.marker", string(mark)),
	))
	defer span.End()

	unlock := that.lock(sessionID)
	defer unlock()

	var outcome entity.Outcome
	session, err := that.sessions.Update(ctx, sessionID, func(session *entity.Session) error {
		if epoch != "" && session.Epoch != epoch {
			return apperror.ErrStaleSession
		}

		var placeErr error
		outcome, placeErr = session.Place(mark, cell, that.enforceTurns)

		return placeErr
	})
	if err != nil {
		that.metrics.Moves.WithLabelValues(moveResult(err)).Inc()
		span.SetStatus(codes.Error, err.Error())

		switch {
		case errors.Is(err, apperror.ErrSessionNotFound), errors.Is(err, apperror.ErrStaleSession):
			log.Warn("move for unknown session", "error", err)
		case isRejectedMove(err):
			log.Debug("move rejected", "error", err)
		default:
			log.Error("failed to apply move", "error", err)
		}

		return err
	}

	that.metrics.Moves.WithLabelValues("ok").Inc()

	switch outcome.Kind {
	case entity.OutcomeWinner:
		that.metrics.Outcomes.WithLabelValues(outcome.Kind.String()).Inc()
		that.hub.Broadcast(sessionID, entity.NewGameResultEvent(outcome))
	case entity.OutcomeDraw:
		that.metrics.Outcomes.WithLabelValues(outcome.Kind.String()).Inc()
		that.hub.Broadcast(sessionID, entity.NewDrawEvent())
	default:
		that.hub.Broadcast(sessionID, entity.NewGameUpdateEvent(session.Board, mark.Opposite()))
	}

	span.SetAttributes(attribute.String("move.outcome", outcome.Kind.String()))

	return nil
}

// RunEviction - removes idle sessions every interval until ctx is done.
// Members of an evicted session are told it expired and lose their seat.
func (that *Coordinator) RunEviction(ctx context.Context, interval, idleFor time.Duration) {
	log := that.logger.With("method", "RunEviction")

	if interval <= 0 || idleFor <= 0 {
		log.Info("session eviction disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := that.evictIdle(ctx, idleFor); err != nil {
				log.Error("failed to evict sessions", "error", err)
			}
		}
	}
}

func (that *Coordinator) evictIdle(ctx context.Context, idleFor time.Duration) error {
	evicted, err := that.sessions.Evict(ctx, idleFor)
	if err != nil {
		return fmt.Errorf("failed to evict sessions: %w", err)
	}

	if len(evicted) == 0 {
		return nil
	}

	for _, session := range evicted {
		unlock := that.lock(session.ID)
		that.hub.CloseGroup(session.ID, session.Epoch, entity.NewErrorEvent(expiredMessage))
		unlock()
	}

	that.metrics.SessionsEvicted.Add(float64(len(evicted)))
	that.logger.Info("evicted idle sessions", "method", "evictIdle", "count", len(evicted))

	return nil
}

func (that *Coordinator) lock(sessionID string) func() {
	mu := &that.locks[xxhash.Sum64String(sessionID)%lockStripes]
	mu.Lock()

	return mu.Unlock
}

func isRejectedMove(err error) bool {
	return errors.Is(err, apperror.ErrCellOccupied) ||
		errors.Is(err, apperror.ErrGameFinished) ||
		errors.Is(err, apperror.ErrNotYourTurn) ||
		errors.Is(err, apperror.ErrInvalidCell) ||
		errors.Is(err, apperror.ErrInvalidMark)
}

func joinResult(err error) string {
	switch {
	case errors.Is(err, apperror.ErrSessionFull):
		return "full"
	case errors.Is(err, apperror.ErrInvalidSessionID):
		return "invalid"
	default:
		return "error"
	}
}

func moveResult(err error) string {
	switch {
	case errors.Is(err, apperror.ErrSessionNotFound), errors.Is(err, apperror.ErrStaleSession):
		return "unknown_session"
	case isRejectedMove(err):
		return "rejected"
	default:
		return "error"
	}
}
