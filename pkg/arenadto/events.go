// Package arenadto defines the JSON shapes exchanged with arena clients.
package arenadto

import "encoding/json"

// Inbound event types.
const (
	TypeJoinGame          = "join_game"
	TypeCancelMatchmaking = "cancel_matchmaking"
	TypeMove              = "move"
)

// Outbound event types.
const (
	TypeMatchmaking = "matchmaking"
	TypeGameStart   = "game_start"
	TypeGameResume  = "game_resume"
	TypeMoveApplied = "move"
	TypeTimer       = "timer"
	TypeGameEnd     = "game_end"
	TypeError       = "error"
)

// Matchmaking statuses.
const (
	StatusWaiting    = "waiting"
	StatusNoOpponent = "no_opponent"
	StatusCancelled  = "cancelled"
)

// Inbound is a client frame. Only the fields relevant to Type are set.
type Inbound struct {
	Type string    `json:"type"`
	Mode string    `json:"mode,omitempty"`
	Move *MoveSpec `json:"move,omitempty"`
}

// MoveSpec is a proposed move. Squares use algebraic coordinates ("e2").
type MoveSpec struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	Castling  string `json:"castling,omitempty"`
	EnPassant bool   `json:"enPassant,omitempty"`
}

// Event is an outbound frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// DecodeInbound parses one client frame.
func DecodeInbound(raw []byte) (Inbound, error) {
	var in Inbound
	err := json.Unmarshal(raw, &in)
	return in, err
}

type Matchmaking struct {
	Status  string `json:"status"`
	Mode    string `json:"mode"`
	Message string `json:"message,omitempty"`
}

type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// GameState is the rendered ContestState.
type GameState struct {
	FEN            string        `json:"fen"`
	Turn           string        `json:"turn"`
	Check          bool          `json:"check"`
	Checkmate      bool          `json:"checkmate"`
	Stalemate      bool          `json:"stalemate"`
	Draw           bool          `json:"draw"`
	DrawReason     string        `json:"drawReason,omitempty"`
	HalfMoveClock  int           `json:"halfMoveClock"`
	FullMoveNumber int           `json:"fullMoveNumber"`
	History        []MoveApplied `json:"history"`
}

type MoveApplied struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Piece     string `json:"piece"`
	Captured  string `json:"captured,omitempty"`
	Promotion string `json:"promotion,omitempty"`
	Castling  string `json:"castling,omitempty"`
	EnPassant bool   `json:"enPassant,omitempty"`
	Check     bool   `json:"check,omitempty"`
	Checkmate bool   `json:"checkmate,omitempty"`
	UCI       string `json:"uci"`
}

// GameStart is sent on game_start and game_resume.
type GameStart struct {
	GameID              string    `json:"gameId"`
	Mode                string    `json:"mode"`
	Color               string    `json:"color"`
	White               Player    `json:"white"`
	Black               Player    `json:"black"`
	EntryFee            string    `json:"entryFee"`
	WhiteTime           int64     `json:"whiteTime"`
	BlackTime           int64     `json:"blackTime"`
	CurrentTurn         string    `json:"currentTurn"`
	CurrentTurnPlayerID string    `json:"currentTurnPlayerId"`
	State               GameState `json:"state"`
}

type MoveEvent struct {
	GameID              string      `json:"gameId"`
	Move                MoveApplied `json:"move"`
	State               GameState   `json:"state"`
	WhiteTime           int64       `json:"whiteTime"`
	BlackTime           int64       `json:"blackTime"`
	CurrentTurn         string      `json:"currentTurn"`
	CurrentTurnPlayerID string      `json:"currentTurnPlayerId"`
}

// Timer carries remaining seconds per side.
type Timer struct {
	GameID              string `json:"gameId"`
	WhiteTime           int64  `json:"whiteTime"`
	BlackTime           int64  `json:"blackTime"`
	CurrentTurn         string `json:"currentTurn"`
	CurrentTurnPlayerID string `json:"currentTurnPlayerId"`
}

type Payouts struct {
	White       string `json:"white"`
	Black       string `json:"black"`
	PlatformFee string `json:"platformFee"`
	TotalPot    string `json:"totalPot"`
}

// GameEnd is personalised per recipient: Result and MoneyChange are from their side.
type GameEnd struct {
	GameID      string    `json:"gameId"`
	Result      string    `json:"result"` // win|loss|draw
	Winner      string    `json:"winner,omitempty"`
	Loser       string    `json:"loser,omitempty"`
	Reason      string    `json:"reason"`
	Message     string    `json:"message,omitempty"`
	MoneyChange string    `json:"moneyChange"`
	Payouts     Payouts   `json:"payouts"`
	Settled     bool      `json:"settled"`
	State       GameState `json:"state"`
}

// Error codes.
const (
	CodeInvalidRequest      = "invalid_request"
	CodeInvalidMove         = "invalid_move"
	CodeUnknownMode         = "unknown_mode"
	CodeNotYourTurn         = "not_your_turn"
	CodeNotInGame           = "not_in_game"
	CodeNotEligible         = "not_eligible"
	CodeInsufficientBalance = "insufficient_balance"
	CodePairingFailed       = "pairing_failed"
	CodeSettlementFailed    = "settlement_failed"
	CodeBusy                = "busy"
)

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
