package entity

type OutcomeKind int

const (
	OutcomeNone OutcomeKind = iota
	OutcomeWinner
	OutcomeDraw
)

func (that OutcomeKind) String() string {
	switch that {
	case OutcomeWinner:
		return "winner"
	case OutcomeDraw:
		return "draw"
	default:
		return "none"
	}
}

// Outcome is the evaluated result of a board. Winner and Line are set only for OutcomeWinner.
type Outcome struct {
	Kind   OutcomeKind
	Winner Mark
	Line   [3]int
}

// WinCombos are checked in this order; the first match wins.
var WinCombos = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Evaluate - checks the board for a winning line or a draw.
func Evaluate(board Board) Outcome {
	for _, combo := range WinCombos {
		a, b, c := board[combo[0]], board[combo[1]], board[combo[2]]
		if a != EmptyCell && a == b && b == c {
			return Outcome{Kind: OutcomeWinner, Winner: a, Line: combo}
		}
	}

	// the game will continue until all the squares are full
	if board.IsFull() {
		return Outcome{Kind: OutcomeDraw}
	}

	return Outcome{Kind: OutcomeNone}
}
