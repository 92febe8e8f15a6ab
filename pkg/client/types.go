package client

import (
	"github.com/loykin/jitter/internal/server"
)

// Wire types shared with the server.
type (
	ErrorResponse       = server.ErrorResponse
	StatusResponse      = server.StatusResponse
	CategoryStatus      = server.CategoryStatus
	ConsumptionResponse = server.ConsumptionResponse
)

// BatchQuery filters a circle batch. Nil fields are not sent.
type BatchQuery struct {
	MinProgress *float64
	MinRadius   *float64
}

type batchResponse[T any] struct {
	Category string `json:"category"`
	Gestures []T    `json:"gestures"`
}
