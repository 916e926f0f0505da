package models

import (
	"github.com/pefman/w40k-combat/internal/combat"
	"github.com/pefman/w40k-combat/internal/stats"
)

// ========================= Catalog =========================

// UnitEntry is a catalog unit together with its id.
type UnitEntry struct {
	ID   string      `json:"id"`
	Unit combat.Unit `json:"unit"`
}

// ========================= Battles =========================

// BattleRequest asks for one battle between two catalog units.
type BattleRequest struct {
	Attacker    string  `json:"attacker"`
	Defender    string  `json:"defender"`
	Distance    int     `json:"distance"`
	Seed        *uint64 `json:"seed,omitempty"` // random when absent
	BattleShock bool    `json:"battle_shock,omitempty"`
}

// BattleResponse identifies both sides by catalog id and by display name.
type BattleResponse struct {
	ID           string         `json:"id"`
	Seed         uint64         `json:"seed"`
	Attacker     string         `json:"attacker"`
	Defender     string         `json:"defender"`
	AttackerName string         `json:"attacker_name"`
	DefenderName string         `json:"defender_name"`
	Winner       combat.Winner  `json:"winner"`
	Rounds       int            `json:"rounds"`
	Final        FinalState     `json:"final"`
	Events       []combat.Event `json:"events,omitempty"`
}

// FinalState is what is left of each side.
type FinalState struct {
	Attacker combat.LiveState `json:"attacker"`
	Defender combat.LiveState `json:"defender"`
}

// BatchRequest asks for Runs independent battles.
type BatchRequest struct {
	BattleRequest
	Runs int `json:"runs"`
}

type BatchResponse struct {
	ID           string        `json:"id"`
	Seed         uint64        `json:"seed"`
	Attacker     string        `json:"attacker"`
	Defender     string        `json:"defender"`
	AttackerName string        `json:"attacker_name"`
	DefenderName string        `json:"defender_name"`
	Runs         int           `json:"runs"`
	Summary      stats.Summary `json:"summary"`
}

// ========================= Errors =========================

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// ========================= WebSocket =========================

// Message types sent on /ws/battle.
const (
	MsgEvent  = "event"
	MsgResult = "result"
	MsgError  = "error"
)

// WebSocket message structure
type WsMsg struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}
