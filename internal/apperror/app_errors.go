package apperror

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionFull      = errors.New("session already has two players")
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrGameFinished     = errors.New("game is already finished")
	ErrNotYourTurn      = errors.New("it's not your turn")
	ErrCellOccupied     = errors.New("cell is already occupied")
	ErrInvalidCell      = errors.New("invalid cell index")
	ErrInvalidMark      = errors.New("invalid player mark")
	ErrAlreadyJoined    = errors.New("connection already joined a session")
	ErrStaleSession     = errors.New("session was replaced by a newer one")
)
