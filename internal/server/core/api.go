package core

import "time"

// Request types

type MoveRequest struct {
	From      string `json:"from" validate:"required,square"`
	To        string `json:"to" validate:"required,square"`
	Promotion string `json:"promotion,omitempty" validate:"omitempty,oneof=q r b n"`
	Version   *int64 `json:"version,omitempty" validate:"omitempty,min=0"` // Optimistic concurrency guard, optional
}

type AdminMoveRequest struct {
	From      string `json:"from,omitempty" validate:"omitempty,square"` // Required unless Reset
	To        string `json:"to,omitempty" validate:"omitempty,square"`
	Promotion string `json:"promotion,omitempty" validate:"omitempty,oneof=q r b n"`
	Reset     bool   `json:"reset,omitempty"`
	Version   *int64 `json:"version,omitempty" validate:"omitempty,min=0"`
}

type LoginRequest struct {
	Password string `json:"password" validate:"required,max=256"`
}

type VerifyRequest struct {
	Token string `json:"token" validate:"required,max=2048"`
}

// Response types

type StateResponse struct {
	FEN         string   `json:"fen"`
	Turn        string   `json:"turn"`   // "white" or "black"
	Status      string   `json:"status"` // "active", "check", "checkmate", "stalemate", "draw"
	IsCheck     bool     `json:"isCheck"`
	IsCheckmate bool     `json:"isCheckmate"`
	IsStalemate bool     `json:"isStalemate"`
	IsDraw      bool     `json:"isDraw"`
	History     []string `json:"history"`
	Version     int64    `json:"version"`
}

type MoveInfo struct {
	From string `json:"from"`
	To   string `json:"to"`
	SAN  string `json:"san"`
}

type MoveResponse struct {
	StateResponse
	Move *MoveInfo `json:"move,omitempty"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	Success   bool      `json:"success"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type VerifyResponse struct {
	Valid     bool      `json:"valid"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type BoardResponse struct {
	FEN   string `json:"fen"`
	Board string `json:"board"` // ASCII representation
}

type HealthResponse struct {
	Status  string `json:"status"`
	Time    int64  `json:"time"`
	Storage string `json:"storage"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}
