// Package types holds the JSON shapes exchanged with clients over HTTP and
// websocket, and the mapping from domain errors to HTTP statuses.
package types

import (
	"github.com/DoyleJ11/avalon-server/internal/engine"
	"github.com/DoyleJ11/avalon-server/internal/room"
)

// ClientMessage is a command sent over a game websocket.
type ClientMessage struct {
	Type    string `json:"type"` // "Propose" | "ApprovalVote" | "MissionVote" | "SideCheck" | "Assassinate"
	Seats   []int  `json:"seats,omitempty"`
	Vote    string `json:"vote,omitempty"`
	Success *bool  `json:"success,omitempty"`
	Target  *int   `json:"target,omitempty"`
}

type ServerMessage struct {
	Type    string        `json:"type"` // "Event" | "RoomUpdate" | "SideCheckResult" | "Error"
	Event   *engine.Event `json:"event,omitempty"`
	Room    *room.Update  `json:"room,omitempty"`
	Target  int           `json:"target,omitempty"`
	IsLoyal bool          `json:"is_loyal,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type CreateUserRequest struct {
	Username string `json:"username"`
}

type CreateUserResponse struct {
	ID    int64  `json:"id"`
	Token string `json:"token"`
}

type SeatRequest struct {
	Seat *int `json:"seat"`
}

type StartGameResponse struct {
	Game int64 `json:"game"`
}

type ProposalRequest struct {
	Seats []int `json:"seats"`
}

type ApprovalRequest struct {
	Vote string `json:"vote"` // "agree" | "reject"
}

type MissionRequest struct {
	Success *bool `json:"success"`
}

type TargetRequest struct {
	Target *int `json:"target"`
}

type SideCheckResponse struct {
	Target  int  `json:"target"`
	IsLoyal bool `json:"is_loyal"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
