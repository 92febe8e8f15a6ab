package server

import (
	"github.com/loykin/jitter/internal/buffer"
	"github.com/loykin/jitter/internal/gesture"
	"github.com/loykin/jitter/internal/history"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

// BatchResponse is returned by GET {base}/batch/{category}. Gestures holds
// records of the category's concrete type.
type BatchResponse struct {
	Category gesture.Category `json:"category"`
	Gestures []gesture.Record `json:"gestures"`
}

// StatusResponse is returned by GET {base}/status.
type StatusResponse struct {
	Categories []CategoryStatus        `json:"categories"`
	History    *history.RecorderStats `json:"history,omitempty"`
}

type CategoryStatus struct {
	buffer.Stats
	Enabled bool `json:"enabled"`
}

// ConsumptionResponse echoes the flags after PUT {base}/consumption.
type ConsumptionResponse struct {
	Consumption map[string]bool `json:"consumption"`
}
