package models

import "time"

type ConnStatus int

const (
	Disconnected ConnStatus = iota
	Connecting
	Connected
)

func (s ConnStatus) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

func (s ConnStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type ConnectionState struct {
	Stream     string     `json:"stream"`
	Status     ConnStatus `json:"status"`
	LastError  string     `json:"lastError,omitempty"`
	RetryCount int        `json:"retryCount"`
	Since      time.Time  `json:"since"`
}
