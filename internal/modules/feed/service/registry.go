package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"market_feed/internal/models"
)

// Subscription: очередь уведомлений одного читателя. Уведомления с одинаковым
// ключом (инструмент, вид, интервал) склеиваются: остаётся последнее.
type Subscription struct {
	ID string

	filter map[string]struct{}
	reg    *Registry

	mu        sync.Mutex
	pending   map[string]models.Change
	order     []string
	coalesced uint64

	signal chan struct{}
	closed chan struct{}
	once   sync.Once
}

// Wants: нужен ли подписчику инструмент. Пустой фильтр означает все инструменты.
func (s *Subscription) Wants(instrument string) bool {
	if len(s.filter) == 0 {
		return true
	}
	_, ok := s.filter[instrument]
	return ok
}

func (s *Subscription) offer(c models.Change) {
	key := c.Key()
	s.mu.Lock()
	if _, ok := s.pending[key]; ok {
		s.coalesced++
	} else {
		s.order = append(s.order, key)
	}
	s.pending[key] = c
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Next ждёт и забирает накопленную пачку изменений в порядке первого появления ключа.
func (s *Subscription) Next(ctx context.Context) ([]models.Change, error) {
	for {
		if batch := s.take(); len(batch) > 0 {
			return batch, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.closed:
			return nil, ErrSubscriptionClosed
		case <-s.signal:
		}
	}
}

func (s *Subscription) take() []models.Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return nil
	}
	batch := make([]models.Change, 0, len(s.order))
	for _, key := range s.order {
		batch = append(batch, s.pending[key])
		delete(s.pending, key)
	}
	s.order = s.order[:0]
	return batch
}

// Coalesced: сколько уведомлений было поглощено более свежими.
func (s *Subscription) Coalesced() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coalesced
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.closed)
		s.reg.remove(s.ID)
	})
}

// Registry раздаёт изменения состояния читателям. Publish никогда не блокирует.
// Также хранит множество отслеживаемых инструментов.
type Registry struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	tracked map[string]time.Time
	seq     atomic.Uint64
}

func NewRegistry() *Registry {
	return &Registry{
		subs:    make(map[string]*Subscription),
		tracked: make(map[string]time.Time),
	}
}

func (r *Registry) Subscribe(instruments ...string) *Subscription {
	s := &Subscription{
		ID:      uuid.NewString(),
		reg:     r,
		pending: make(map[string]models.Change),
		signal:  make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
	if syms := models.NormSymbols(instruments); len(syms) > 0 {
		s.filter = make(map[string]struct{}, len(syms))
		for _, sym := range syms {
			s.filter[sym] = struct{}{}
		}
	}

	r.mu.Lock()
	r.subs[s.ID] = s
	r.mu.Unlock()
	return s
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

func (r *Registry) Publish(c models.Change) {
	if c.Version == 0 {
		c.Version = r.seq.Add(1)
	}
	if c.At.IsZero() {
		c.At = time.Now()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.subs {
		if s.Wants(c.Instrument) {
			s.offer(c)
		}
	}
}

func (r *Registry) Subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Registry) Track(instrument string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tracked[instrument]; ok {
		return false
	}
	r.tracked[instrument] = time.Now()
	return true
}

func (r *Registry) Untrack(instrument string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tracked[instrument]; !ok {
		return false
	}
	delete(r.tracked, instrument)
	return true
}

func (r *Registry) IsTracked(instrument string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tracked[instrument]
	return ok
}

// Tracked: отслеживаемые инструменты по алфавиту.
func (r *Registry) Tracked() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.tracked))
	for sym := range r.tracked {
		out = append(out, sym)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
