package entity

// Names of the events exchanged with clients.
const (
	ActionJoinGame = "joinGame"
	ActionMakeMove = "makeMove"

	ActionPlayerSymbol = "playerSymbol"
	ActionGameUpdate   = "gameUpdate"
	ActionGameResult   = "gameResult"
	ActionDraw         = "draw"
	ActionError        = "error"
)

// Event is an outbound notification; Payload is nil for events without arguments.
type Event struct {
	Action  string
	Payload any
}

type PlayerSymbolPayload struct {
	Marker Mark `json:"marker"`
}

type GameUpdatePayload struct {
	Board      Board `json:"board"`
	NextPlayer Mark  `json:"nextPlayer"`
}

type GameResultPayload struct {
	Winner      Mark   `json:"winner"`
	WinningLine [3]int `json:"winningLine"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func NewPlayerSymbolEvent(mark Mark) Event {
	return Event{Action: ActionPlayerSymbol, Payload: PlayerSymbolPayload{Marker: mark}}
}

func NewGameUpdateEvent(board Board, next Mark) Event {
	return Event{Action: ActionGameUpdate, Payload: GameUpdatePayload{Board: board, NextPlayer: next}}
}

func NewGameResultEvent(outcome Outcome) Event {
	return Event{Action: ActionGameResult, Payload: GameResultPayload{Winner: outcome.Winner, WinningLine: outcome.Line}}
}

func NewDrawEvent() Event {
	return Event{Action: ActionDraw}
}

func NewErrorEvent(message string) Event {
	return Event{Action: ActionError, Payload: ErrorPayload{Message: message}}
}
