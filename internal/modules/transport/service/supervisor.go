package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"market_feed/internal/models"
	"market_feed/internal/retry"
)

// Hooks вызываются из горутины Run. OnFrame не должен надолго блокировать:
// пока он работает, кадры копятся в буфере сессии.
type Hooks struct {
	OnConnect    func(ctx context.Context)
	OnFrame      func(ctx context.Context, f models.Frame)
	OnDisconnect func(err error)
	OnState      func(st models.ConnectionState)
}

// Supervisor держит одно логическое соединение: открывает, читает, переподключается с паузой.
type Supervisor struct {
	spec   StreamSpec
	opener Opener
	policy retry.Policy
	hooks  Hooks
	log    *zap.Logger

	mu    sync.RWMutex
	state models.ConnectionState
}

func NewSupervisor(spec StreamSpec, opener Opener, policy retry.Policy, hooks Hooks, log *zap.Logger) *Supervisor {
	return &Supervisor{
		spec:   spec,
		opener: opener,
		policy: policy,
		hooks:  hooks,
		log:    log.With(zap.String("stream", spec.Name())),
		state: models.ConnectionState{
			Stream: spec.Name(),
			Status: models.Disconnected,
			Since:  time.Now(),
		},
	}
}

func (s *Supervisor) Spec() StreamSpec { return s.spec }

func (s *Supervisor) State() models.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Supervisor) Connected() bool {
	return s.State().Status == models.Connected
}

// Run крутится до отмены ctx. Любой обрыв ведёт к паузе по policy и новому Open.
func (s *Supervisor) Run(ctx context.Context) {
	defer s.setState(models.Disconnected, nil, false)

	attempt := 0
	for ctx.Err() == nil {
		s.setState(models.Connecting, nil, false)

		stream, err := s.opener.Open(ctx, s.spec)
		if err == nil {
			attempt = 0
			s.setState(models.Connected, nil, false)
			s.log.Info("stream connected")
			if s.hooks.OnConnect != nil {
				s.hooks.OnConnect(ctx)
			}

			err = s.consume(ctx, stream)

			if ctx.Err() != nil {
				return
			}
			s.log.Warn("stream disconnected", zap.Error(err))
			if s.hooks.OnDisconnect != nil {
				s.hooks.OnDisconnect(err)
			}
		} else {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("stream connect failed", zap.Error(err), zap.Int("attempt", attempt+1))
		}

		delay := s.policy.Delay(attempt)
		attempt++
		s.setState(models.Disconnected, err, true)
		if retry.Sleep(ctx, delay) != nil {
			return
		}
	}
}

func (s *Supervisor) consume(ctx context.Context, stream Stream) error {
	defer func() { _ = stream.Close() }()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-stream.Frames():
			if !ok {
				<-stream.Done()
				return stream.Err()
			}
			if s.hooks.OnFrame != nil {
				s.hooks.OnFrame(ctx, f)
			}
		}
	}
}

func (s *Supervisor) setState(status models.ConnStatus, err error, failed bool) {
	s.mu.Lock()
	st := s.state
	if st.Status != status {
		st.Since = time.Now()
	}
	st.Status = status
	if err != nil {
		st.LastError = err.Error()
	}
	switch {
	case failed:
		st.RetryCount++
	case status == models.Connected:
		st.RetryCount = 0
	}
	changed := st != s.state
	s.state = st
	s.mu.Unlock()

	if changed && s.hooks.OnState != nil {
		s.hooks.OnState(st)
	}
}
