package service

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"market_feed/internal/exchange/binance"
	"market_feed/internal/models"
)

// ErrClosed: сессию закрыли локально (Close или отмена контекста).
var ErrClosed = errors.New("session closed")

// StreamSpec однозначно определяет адрес соединения.
type StreamSpec struct {
	Kind        models.StreamKind
	Instruments []string
	Interval    string
}

// Name возвращает ключ соединения для логов и ConnectionState, например "ticker", "kline_1m", "depth:BTCUSDT".
func (s StreamSpec) Name() string {
	name := string(s.Kind)
	if s.Kind == models.KindKline && s.Interval != "" {
		name += "_" + s.Interval
	}
	if s.Kind != models.KindTicker && len(s.Instruments) == 1 {
		name += ":" + s.Instruments[0]
	}
	return name
}

func (s StreamSpec) Streams() []string {
	return binance.StreamNames(s.Kind, s.Instruments, s.Interval)
}

// Stream: открытое соединение: кадры в порядке прихода и сигнал закрытия.
type Stream interface {
	Frames() <-chan models.Frame
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Opener открывает соединение по StreamSpec. Повторами занимается Supervisor.
type Opener interface {
	Open(ctx context.Context, spec StreamSpec) (Stream, error)
}

type Config struct {
	BaseURL          string
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	HandshakeTimeout time.Duration
	FrameBuffer      int
}

type Dialer struct {
	cfg    Config
	dialer *websocket.Dialer
	decode func([]byte) (models.Frame, error)
	log    *zap.Logger
}

func NewDialer(cfg Config, log *zap.Logger) *Dialer {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = 1024
	}
	return &Dialer{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		decode: binance.Decode,
		log:    log.Named("transport"),
	}
}

func (d *Dialer) Open(ctx context.Context, spec StreamSpec) (Stream, error) {
	streams := spec.Streams()
	if len(streams) == 0 {
		return nil, errors.Errorf("stream %s: no instruments", spec.Name())
	}
	url := binance.CombinedURL(d.cfg.BaseURL, streams)

	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial %s: http %d", spec.Name(), resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "dial %s", spec.Name())
	}

	d.log.Debug("connected", zap.String("stream", spec.Name()), zap.String("url", url))

	s := &Session{
		name:    spec.Name(),
		conn:    conn,
		cfg:     d.cfg,
		decode:  d.decode,
		log:     d.log.With(zap.String("stream", spec.Name())),
		frames:  make(chan models.Frame, d.cfg.FrameBuffer),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	s.start(ctx)
	return s, nil
}

// Session: одно websocket-соединение. Ошибки соединения не паникуют:
// читатель видит закрытие Frames и Done, причина в Err.
type Session struct {
	name   string
	conn   *websocket.Conn
	cfg    Config
	decode func([]byte) (models.Frame, error)
	log    *zap.Logger

	frames  chan models.Frame
	done    chan struct{}
	closing chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

func (s *Session) Frames() <-chan models.Frame { return s.frames }
func (s *Session) Done() <-chan struct{}       { return s.done }

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.setErr(ErrClosed)
		close(s.closing)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *Session) start(ctx context.Context) {
	extend := func() {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	extend()
	s.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})
	s.conn.SetPingHandler(func(data string) error {
		extend()
		err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	go s.readLoop()
	go s.keepalive(ctx)
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer close(s.frames)

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(errors.Wrap(err, "read"))
			_ = s.conn.Close()
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		frame, err := s.decode(msg)
		if err != nil {
			if !errors.Is(err, binance.ErrIgnored) {
				s.log.Warn("malformed frame dropped", zap.Error(err), zap.String("payload", preview(msg)))
			}
			continue
		}

		select {
		case s.frames <- frame:
		case <-s.closing:
			return
		}
	}
}

// keepalive шлёт ping каждые PingInterval и закрывает сессию по отмене ctx.
func (s *Session) keepalive(ctx context.Context) {
	t := time.NewTicker(s.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case <-t.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				s.log.Debug("ping failed", zap.Error(err))
			}
		}
	}
}

func preview(msg []byte) string {
	const max = 200
	s := strings.TrimSpace(string(msg))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
