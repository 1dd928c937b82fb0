package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
)

var (
	errMalformedMessage = errors.New("malformed message")
	errNotJoined        = errors.New("connection has not joined a session")
	errForeignMarker    = errors.New("move does not match the connection's session or marker")
)

func decodePayload(message *Message, payload *Payload) error {
	if len(message.Payload) == 0 {
		return fmt.Errorf("%w: payload is missing", errMalformedMessage)
	}

	if err := json.Unmarshal(message.Payload, payload); err != nil {
		return fmt.Errorf("%w: %w", errMalformedMessage, err)
	}

	return nil
}

func (that *Server) handleJoinGame(ctx context.Context, conn *connection, message *Message) error {
	var payload Payload
	if err := decodePayload(message, &payload); err != nil {
		return err
	}

	if seat := that.hub.seatOf(conn.id); seat.joined() {
		return fmt.Errorf("%w: session %s", apperror.ErrAlreadyJoined, seat.SessionID)
	}

	if _, err := that.coordinator.Join(ctx, payload.SessionID, conn.id); err != nil {
		that.sendErrorResponse(conn, joinErrorMessage(err))

		return fmt.Errorf("failed to join session: %w", err)
	}

	return nil
}

func (that *Server) handleMakeMove(ctx context.Context, conn *connection, message *Message) error {
	var payload Payload
	if err := decodePayload(message, &payload); err != nil {
		return err
	}

	if payload.CellIndex == nil {
		return fmt.Errorf("%w: cellIndex is missing", errMalformedMessage)
	}

	seat := that.hub.seatOf(conn.id)

	if that.coordinator.EnforcesTurns() {
		if !seat.joined() {
			return errNotJoined
		}

		if payload.SessionID != seat.SessionID || payload.Marker != seat.Marker {
			return errForeignMarker
		}
	}

	var epoch string
	if payload.SessionID == seat.SessionID {
		epoch = seat.Epoch
	}

	return that.coordinator.MakeMove(ctx, payload.SessionID, epoch, *payload.CellIndex, payload.Marker)
}

func (that *Server) sendErrorResponse(conn *connection, errorMsg string) {
	that.hub.Unicast(conn.id, entity.NewErrorEvent(errorMsg))
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, apperror.ErrSessionFull):
		return "session is full"
	case errors.Is(err, apperror.ErrInvalidSessionID):
		return "invalid session id"
	default:
		return "failed to join session"
	}
}
