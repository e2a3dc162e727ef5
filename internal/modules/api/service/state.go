package service

import (
	"time"

	feed "market_feed/internal/modules/feed/service"
)

// State: сводка для проб: жив ли процесс и готов ли он отдавать рынок.
type State struct {
	startedAt time.Time
	reader    feed.Reader
}

func NewState(reader feed.Reader) *State {
	return &State{startedAt: time.Now(), reader: reader}
}

// Ready: соединение тикеров установлено.
func (s *State) Ready() bool { return s.reader.IsLive() }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
