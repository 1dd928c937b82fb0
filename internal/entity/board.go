package entity

import (
	"encoding/json"
	"fmt"
)

// Mark is the symbol a player places on the board.
type Mark string

const (
	PlayerX Mark = "X"
	PlayerO Mark = "O"

	EmptyCell Mark = ""
)

const BoardSize = 9

// IsPlayer reports whether the mark is one of the two player symbols.
func (that Mark) IsPlayer() bool {
	return that == PlayerX || that == PlayerO
}

// Opposite - returns the mark of the other player.
func (that Mark) Opposite() Mark {
	if that == PlayerX {
		return PlayerO
	}
	return PlayerX
}

// Board holds the nine cells in row-major order.
type Board [BoardSize]Mark

func (that Board) IsFull() bool {
	for _, cell := range that {
		if cell == EmptyCell {
			return false
		}
	}

	return true
}

// MarshalJSON encodes empty cells as null so clients get ["X", null, ...].
func (that Board) MarshalJSON() ([]byte, error) {
	cells := make([]*Mark, len(that))
	for i := range that {
		if that[i] != EmptyCell {
			cell := that[i]
			cells[i] = &cell
		}
	}

	return json.Marshal(cells)
}

func (that *Board) UnmarshalJSON(data []byte) error {
	var cells []*Mark
	if err := json.Unmarshal(data, &cells); err != nil {
		return fmt.Errorf("failed to unmarshal board: %w", err)
	}

	if len(cells) != BoardSize {
		return fmt.Errorf("failed to unmarshal board: want %d cells, got %d", BoardSize, len(cells))
	}

	for i, cell := range cells {
		if cell == nil {
			that[i] = EmptyCell
			continue
		}
		that[i] = *cell
	}

	return nil
}
