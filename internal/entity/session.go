package entity

import (
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/apperror"
)

const (
	MaxOccupants = 2

	maxSessionIDRunes = 128
)

// Session is the authoritative state of one game shared by its participants.
// Epoch tells apart two sessions that reused the same ID after an eviction.
type Session struct {
	ID        string             `json:"id"`
	Epoch     string             `json:"epoch"`
	Board     Board              `json:"board"`
	Seats     [MaxOccupants]bool `json:"seats"`
	Turn      Mark               `json:"turn"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Epoch:     uuid.NewString(),
		Turn:      PlayerX,
		UpdatedAt: now,
	}
}

// ValidateSessionID - session ids come from clients, so only bounded printable strings pass.
func ValidateSessionID(id string) error {
	if id == "" || !utf8.ValidString(id) {
		return apperror.ErrInvalidSessionID
	}

	if utf8.RuneCountInString(id) > maxSessionIDRunes {
		return fmt.Errorf("%w: longer than %d runes", apperror.ErrInvalidSessionID, maxSessionIDRunes)
	}

	for _, r := range id {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character", apperror.ErrInvalidSessionID)
		}
	}

	return nil
}

var seatMarks = [MaxOccupants]Mark{PlayerX, PlayerO}

// Seat - takes the first free seat: X while nobody holds it, otherwise O.
func (that *Session) Seat() (Mark, error) {
	for i, taken := range that.Seats {
		if !taken {
			that.Seats[i] = true
			return seatMarks[i], nil
		}
	}

	return EmptyCell, fmt.Errorf("%w: session %s", apperror.ErrSessionFull, that.ID)
}

// Unseat - frees the seat of mark so the next joiner gets it. The board is kept.
func (that *Session) Unseat(mark Mark) error {
	for i, seatMark := range seatMarks {
		if seatMark == mark {
			that.Seats[i] = false
			return nil
		}
	}

	return fmt.Errorf("%w: %q", apperror.ErrInvalidMark, mark)
}

// Occupants - number of seats currently held.
func (that *Session) Occupants() int {
	count := 0
	for _, taken := range that.Seats {
		if taken {
			count++
		}
	}

	return count
}

// Outcome - evaluates the current board.
func (that *Session) Outcome() Outcome {
	return Evaluate(that.Board)
}

// Place - validates and applies a move, returning the outcome of the new board.
// On error the session is left untouched.
func (that *Session) Place(mark Mark, cell int, enforceTurn bool) (Outcome, error) {
	if cell < 0 || cell >= len(that.Board) {
		return Outcome{}, fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
	}

	if !mark.IsPlayer() {
		return Outcome{}, fmt.Errorf("%w: %q", apperror.ErrInvalidMark, mark)
	}

	if that.Outcome().Kind == OutcomeWinner {
		return Outcome{}, apperror.ErrGameFinished
	}

	if that.Board[cell] != EmptyCell {
		return Outcome{}, fmt.Errorf("%w: cell %d", apperror.ErrCellOccupied, cell)
	}

	if enforceTurn && that.Turn != mark {
		return Outcome{}, apperror.ErrNotYourTurn
	}

	that.Board[cell] = mark
	that.Turn = mark.Opposite()

	return that.Outcome(), nil
}

// Clone returns a copy that shares nothing with the receiver.
func (that *Session) Clone() *Session {
	clone := *that
	return &clone
}
