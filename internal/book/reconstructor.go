package book

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"market_feed/internal/models"
	"market_feed/internal/retry"
)

// SnapshotFetcher: REST-источник снапшота стакана.
type SnapshotFetcher interface {
	DepthSnapshot(ctx context.Context, instrument string, limit int) (models.DepthSnapshot, error)
}

type Options struct {
	DepthLimit int
	BufferSize int
	Retry      retry.Policy

	// OnStatus и OnUpdate вызываются из горутины Run, они не должны блокировать.
	OnStatus func(instrument string, status models.BookStatus)
	OnUpdate func(instrument string, version uint64)
}

// View: опубликованное состояние стакана. Неизменяемо.
type View struct {
	Ladder  models.Ladder
	Depth   models.DepthCurve
	Version uint64
}

// message: элемент входной очереди: дифф, сброс или сброс с загрузкой снапшота, в порядке поступления.
type message struct {
	diff  models.DepthDiff
	reset bool
	sync  bool
}

type snapshotResult struct {
	gen  uint64
	snap models.DepthSnapshot
}

// Reconstructor собирает стакан из снапшота и потока диффов.
// Всё изменяемое состояние принадлежит горутине Run; читатели видят только View.
type Reconstructor struct {
	instrument string
	fetcher    SnapshotFetcher
	opts       Options
	log        *zap.Logger

	inbox chan message
	snaps chan snapshotResult
	done  chan struct{}

	// состояние горутины Run
	status      models.BookStatus
	book        *Book
	buffer      []models.DepthDiff
	gen         uint64
	cancelFetch context.CancelFunc
	behind      int // подряд снапшотов старее буфера

	view    atomic.Pointer[View]
	statusV atomic.Int32
	version atomic.Uint64
}

func NewReconstructor(instrument string, fetcher SnapshotFetcher, log *zap.Logger, opts Options) *Reconstructor {
	if opts.DepthLimit <= 0 {
		opts.DepthLimit = 50
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconstructor{
		instrument: instrument,
		fetcher:    fetcher,
		opts:       opts,
		log:        log.With(zap.String("instrument", instrument)),
		inbox:      make(chan message, 256),
		snaps:      make(chan snapshotResult, 1),
		done:       make(chan struct{}),
	}
}

func (r *Reconstructor) Instrument() string { return r.instrument }

// Push ставит дифф в очередь. Порядок вызовов Push и Reset сохраняется.
func (r *Reconstructor) Push(ctx context.Context, d models.DepthDiff) error {
	return r.send(ctx, message{diff: d})
}

// Reset сбрасывает стакан в Uninitialized (обрыв соединения). Снапшот не запрашивается,
// пока не придёт дифф или Resync.
func (r *Reconstructor) Reset(ctx context.Context) error {
	return r.send(ctx, message{reset: true})
}

// Resync сбрасывает стакан и сразу запрашивает снапшот, буферизуя диффы до его прихода.
// Вызывается при подписке на поток диффов.
func (r *Reconstructor) Resync(ctx context.Context) error {
	return r.send(ctx, message{reset: true, sync: true})
}

func (r *Reconstructor) send(ctx context.Context, m message) error {
	select {
	case r.inbox <- m:
		return nil
	case <-r.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View возвращает последний опубликованный стакан, если книга в состоянии Live.
func (r *Reconstructor) View() (*View, bool) {
	v := r.view.Load()
	return v, v != nil
}

func (r *Reconstructor) Status() models.BookStatus {
	return models.BookStatus(r.statusV.Load())
}

func (r *Reconstructor) Done() <-chan struct{} { return r.done }

// Run: цикл владельца. Завершается по отмене ctx.
func (r *Reconstructor) Run(ctx context.Context) {
	defer close(r.done)
	defer func() {
		r.stopFetch()
		r.view.Store(nil)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-r.inbox:
			if m.reset {
				r.reset()
				if m.sync {
					r.startSync(ctx)
				}
				continue
			}
			r.onDiff(ctx, m.diff)
		case res := <-r.snaps:
			r.onSnapshot(ctx, res)
		}
	}
}

func (r *Reconstructor) onDiff(ctx context.Context, d models.DepthDiff) {
	switch r.status {
	case models.BookUninitialized:
		r.buffer = append(r.buffer[:0], d)
		r.startSync(ctx)

	case models.BookSyncing:
		if len(r.buffer) >= r.opts.BufferSize {
			n := copy(r.buffer, r.buffer[1:])
			r.buffer = r.buffer[:n]
		}
		r.buffer = append(r.buffer, d)

	case models.BookLive:
		err := r.book.ApplyDiff(d)
		if err == nil {
			r.publish()
			return
		}
		if errors.Is(err, ErrStaleDiff) {
			r.log.Debug("stale depth diff dropped",
				zap.Int64("final_id", d.FinalUpdateID),
				zap.Int64("book_id", r.book.LastUpdateID()))
			return
		}
		r.log.Warn("depth sequence broken, resyncing", zap.Error(err))
		r.dropBook()
		r.buffer = append(r.buffer[:0], d)
		r.startSync(ctx)
	}
}

func (r *Reconstructor) onSnapshot(ctx context.Context, res snapshotResult) {
	if res.gen != r.gen || r.status != models.BookSyncing {
		return
	}
	r.stopFetch()
	snap := res.snap
	last := snap.LastUpdateID

	kept := r.buffer[:0]
	for _, d := range r.buffer {
		if d.FinalUpdateID == 0 || d.FinalUpdateID > last {
			kept = append(kept, d)
		}
	}
	r.buffer = kept

	// снапшот старее буфера: склеить нельзя, берём новый
	if len(kept) > 0 && kept[0].FirstUpdateID != 0 && kept[0].FirstUpdateID > last+1 {
		delay := r.opts.Retry.Delay(r.behind)
		r.behind++
		r.log.Info("snapshot is behind buffered diffs, refetching",
			zap.Int64("snapshot_id", last),
			zap.Int64("first_buffered_id", kept[0].FirstUpdateID),
			zap.Duration("delay", delay))
		r.fetchAfter(ctx, delay)
		return
	}

	b := FromSnapshot(snap)
	b.instrument = r.instrument
	for i, d := range kept {
		err := b.ApplyDiff(d)
		if err == nil || errors.Is(err, ErrStaleDiff) {
			continue
		}
		r.log.Warn("gap inside buffered diffs, resyncing", zap.Error(err))
		r.buffer = append(r.buffer[:0], kept[i:]...)
		r.setStatus(models.BookUninitialized)
		r.startSync(ctx)
		return
	}

	r.book = b
	r.buffer = r.buffer[:0]
	r.behind = 0
	r.setStatus(models.BookLive)
	r.publish()
	r.log.Info("order book live",
		zap.Int64("last_update_id", b.LastUpdateID()),
		zap.Int("replayed", len(kept)))
}

func (r *Reconstructor) reset() {
	r.stopFetch()
	r.gen++
	r.behind = 0
	r.buffer = r.buffer[:0]
	r.dropBook()
}

func (r *Reconstructor) dropBook() {
	r.book = nil
	r.setStatus(models.BookUninitialized)
}

func (r *Reconstructor) startSync(ctx context.Context) {
	r.setStatus(models.BookSyncing)
	r.fetchAfter(ctx, 0)
}

// fetchAfter запускает загрузку снапшота нового поколения через delay; результаты старых поколений игнорируются.
func (r *Reconstructor) fetchAfter(ctx context.Context, delay time.Duration) {
	r.stopFetch()
	r.gen++
	fctx, cancel := context.WithCancel(ctx)
	r.cancelFetch = cancel
	go r.fetchLoop(fctx, r.gen, delay)
}

func (r *Reconstructor) stopFetch() {
	if r.cancelFetch != nil {
		r.cancelFetch()
		r.cancelFetch = nil
	}
}

func (r *Reconstructor) fetchLoop(ctx context.Context, gen uint64, wait time.Duration) {
	if retry.Sleep(ctx, wait) != nil {
		return
	}
	for attempt := 0; ; attempt++ {
		snap, err := r.fetcher.DepthSnapshot(ctx, r.instrument, r.opts.DepthLimit)
		if err == nil {
			select {
			case r.snaps <- snapshotResult{gen: gen, snap: snap}:
			case <-ctx.Done():
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		delay := r.opts.Retry.Delay(attempt)
		r.log.Warn("depth snapshot failed, retrying",
			zap.Error(err), zap.Int("attempt", attempt+1), zap.Duration("delay", delay))
		if retry.Sleep(ctx, delay) != nil {
			return
		}
	}
}

func (r *Reconstructor) setStatus(s models.BookStatus) {
	if s == r.status {
		return
	}
	r.status = s
	r.statusV.Store(int32(s))
	if s != models.BookLive {
		r.view.Store(nil)
	}
	if r.opts.OnStatus != nil {
		r.opts.OnStatus(r.instrument, s)
	}
}

func (r *Reconstructor) publish() {
	ladder := r.book.Ladder()
	v := r.version.Add(1)
	r.view.Store(&View{Ladder: ladder, Depth: Curve(ladder), Version: v})
	if r.opts.OnUpdate != nil {
		r.opts.OnUpdate(r.instrument, v)
	}
}
