package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"market_feed/internal/book"
	"market_feed/internal/models"
	"market_feed/internal/modules/config"
	transport "market_feed/internal/modules/transport/service"
	"market_feed/internal/notify"
	"market_feed/internal/series"
)

var (
	ErrNotStarted         = errors.New("feed is not started")
	ErrSubscriptionClosed = errors.New("subscription closed")
)

// MarketData: REST-источник: снапшот стакана и история свечей.
type MarketData interface {
	DepthSnapshot(ctx context.Context, instrument string, limit int) (models.DepthSnapshot, error)
	Klines(ctx context.Context, instrument, interval string, limit int) ([]models.Candle, error)
}

// Reader: всё, что читатели (HTTP, зеркало в Redis) могут получить о состоянии рынка.
// Возвращаемые значения являются копиями, их можно хранить и менять.
type Reader interface {
	GetTicker(instrument string) (models.TickerSnapshot, bool)
	GetOrderBook(instrument string, depth int) (models.Ladder, bool)
	GetDepth(instrument string) (models.DepthCurve, bool)
	GetTrades(instrument string) ([]models.TradePrint, bool)
	GetCandles(instrument, interval string) ([]models.Candle, bool)
	BookStatus(instrument string) models.BookStatus
	IsLive() bool
	Connections() []models.ConnectionState
	Instruments() []string
}

type instrument struct {
	symbol  string
	book    *book.Reconstructor
	cancel  context.CancelFunc
	tape    *series.Tape
	candles map[string]*series.Candles
}

// link: одно логическое соединение под Supervisor.
type link struct {
	key    string
	spec   transport.StreamSpec
	sup    *transport.Supervisor
	cancel context.CancelFunc
	done   chan struct{}
}

// Feed держит соединения с биржей и состояние по каждому инструменту.
type Feed struct {
	cfg      config.FeedConfig
	opener   transport.Opener
	market   MarketData
	registry *Registry
	tickers  *Tickers
	notifier notify.Notifier
	log      *zap.Logger

	churn sync.Mutex // Start, Stop, Subscribe, Unsubscribe по одному

	mu        sync.RWMutex
	insts     map[string]*instrument
	links     map[string]*link
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time

	bg sync.WaitGroup
}

var _ Reader = (*Feed)(nil)

func New(
	cfg config.FeedConfig,
	opener transport.Opener,
	market MarketData,
	registry *Registry,
	notifier notify.Notifier,
	log *zap.Logger,
) *Feed {
	return &Feed{
		cfg:      cfg,
		opener:   opener,
		market:   market,
		registry: registry,
		tickers:  NewTickers(),
		notifier: notifier,
		log:      log.Named("feed"),
		insts:    make(map[string]*instrument),
		links:    make(map[string]*link),
	}
}

// Start поднимает соединения для начального списка инструментов.
func (f *Feed) Start(instruments ...string) error {
	f.churn.Lock()
	if f.ctx != nil {
		f.churn.Unlock()
		return errors.New("feed already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.mu.Lock()
	f.ctx, f.cancel = ctx, cancel
	f.startedAt = time.Now()
	f.mu.Unlock()
	f.churn.Unlock()

	f.log.Info("feed started",
		zap.Strings("instruments", instruments),
		zap.Strings("intervals", f.cfg.Intervals))
	return f.Subscribe(instruments...)
}

// Stop закрывает все соединения и ждёт завершения горутин, но не дольше ctx.
func (f *Feed) Stop(ctx context.Context) error {
	f.churn.Lock()
	defer f.churn.Unlock()

	f.mu.Lock()
	if f.cancel == nil {
		f.mu.Unlock()
		return nil
	}
	f.cancel()
	waits := make([]<-chan struct{}, 0, len(f.links)+len(f.insts))
	for _, l := range f.links {
		waits = append(waits, l.done)
	}
	for _, inst := range f.insts {
		waits = append(waits, inst.book.Done())
	}
	f.mu.Unlock()

	bgDone := make(chan struct{})
	go func() {
		f.bg.Wait()
		close(bgDone)
	}()
	waits = append(waits, bgDone)

	for _, w := range waits {
		select {
		case <-w:
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "feed stop")
		}
	}
	f.log.Info("feed stopped")
	return nil
}

// Subscribe добавляет инструменты: состояние, стакан, переподключение затронутых потоков.
func (f *Feed) Subscribe(instruments ...string) error {
	f.churn.Lock()
	defer f.churn.Unlock()

	f.mu.RLock()
	ctx := f.ctx
	f.mu.RUnlock()
	if ctx == nil {
		return ErrNotStarted
	}
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), "feed stopped")
	}

	var added []string
	for _, sym := range models.NormSymbols(instruments) {
		f.mu.RLock()
		_, exists := f.insts[sym]
		f.mu.RUnlock()
		if exists {
			continue
		}
		inst := f.newInstrument(ctx, sym)
		f.mu.Lock()
		f.insts[sym] = inst
		f.mu.Unlock()
		f.tickers.Track(sym)
		f.registry.Track(sym)
		added = append(added, sym)
	}
	if len(added) == 0 {
		return nil
	}

	f.log.Info("instruments subscribed", zap.Strings("instruments", added))
	f.rebalance()

	if f.cfg.SeedCandles && len(f.cfg.Intervals) > 0 {
		f.bg.Add(1)
		go func() {
			defer f.bg.Done()
			f.seedCandles(ctx, added)
		}()
	}
	return nil
}

// Unsubscribe убирает инструменты и освобождает их состояние.
func (f *Feed) Unsubscribe(instruments ...string) error {
	f.churn.Lock()
	defer f.churn.Unlock()

	f.mu.RLock()
	started := f.ctx != nil
	f.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}

	var removed []string
	for _, sym := range models.NormSymbols(instruments) {
		f.mu.Lock()
		inst, ok := f.insts[sym]
		delete(f.insts, sym)
		f.mu.Unlock()
		if !ok {
			continue
		}
		inst.cancel()
		f.tickers.Untrack(sym)
		f.registry.Untrack(sym)
		f.registry.Publish(models.Change{Instrument: sym, Kind: models.ChangeStatus})
		removed = append(removed, sym)
	}
	if len(removed) == 0 {
		return nil
	}

	f.log.Info("instruments unsubscribed", zap.Strings("instruments", removed))
	f.rebalance()
	return nil
}

func (f *Feed) newInstrument(ctx context.Context, sym string) *instrument {
	bctx, cancel := context.WithCancel(ctx)
	inst := &instrument{
		symbol:  sym,
		cancel:  cancel,
		tape:    series.NewTape(f.cfg.TradeTapeSize),
		candles: make(map[string]*series.Candles, len(f.cfg.Intervals)),
	}
	for _, iv := range f.cfg.Intervals {
		inst.candles[iv] = series.NewCandles(f.cfg.CandleSeriesSize)
	}
	inst.book = book.NewReconstructor(sym, f.market, f.log.Named("book"), book.Options{
		DepthLimit: f.cfg.DepthLimit,
		BufferSize: f.cfg.DiffBuffer,
		Retry:      f.cfg.SnapshotRetry,
		OnStatus: func(instrument string, status models.BookStatus) {
			f.log.Debug("book status", zap.String("instrument", instrument), zap.Stringer("status", status))
			f.registry.Publish(models.Change{Instrument: instrument, Kind: models.ChangeBook})
		},
		OnUpdate: func(instrument string, version uint64) {
			f.registry.Publish(models.Change{Instrument: instrument, Kind: models.ChangeBook, Version: version})
		},
	})
	go inst.book.Run(bctx)
	return inst
}

// desiredSpecs: набор соединений для текущих инструментов с учётом топологии.
func (f *Feed) desiredSpecs() map[string]transport.StreamSpec {
	f.mu.RLock()
	syms := make([]string, 0, len(f.insts))
	for sym := range f.insts {
		syms = append(syms, sym)
	}
	f.mu.RUnlock()
	sort.Strings(syms)

	out := make(map[string]transport.StreamSpec)
	if len(syms) == 0 {
		return out
	}
	add := func(kind models.StreamKind, interval string) {
		if f.cfg.Topology.For(kind) == config.TopologyPerInstrument {
			for _, sym := range syms {
				spec := transport.StreamSpec{Kind: kind, Instruments: []string{sym}, Interval: interval}
				out[specKey(spec)] = spec
			}
			return
		}
		spec := transport.StreamSpec{Kind: kind, Instruments: syms, Interval: interval}
		out[specKey(spec)] = spec
	}

	add(models.KindTicker, "")
	add(models.KindDepth, "")
	add(models.KindTrade, "")
	for _, iv := range f.cfg.Intervals {
		add(models.KindKline, iv)
	}
	return out
}

func specKey(spec transport.StreamSpec) string {
	return spec.Name() + "|" + strings.Join(spec.Instruments, ",")
}

// rebalance останавливает лишние соединения и поднимает недостающие.
// Мультиплексное соединение при смене набора инструментов пересоздаётся.
func (f *Feed) rebalance() {
	want := f.desiredSpecs()

	f.mu.Lock()
	var stale []*link
	for key, l := range f.links {
		if _, ok := want[key]; !ok {
			stale = append(stale, l)
			delete(f.links, key)
		}
	}
	f.mu.Unlock()

	// старое соединение должно замолчать до того, как новое сбросит стаканы
	for _, l := range stale {
		l.cancel()
		<-l.done
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for key, spec := range want {
		if _, ok := f.links[key]; ok {
			continue
		}
		f.links[key] = f.startLink(key, spec)
	}
}

// startLink вызывается под f.mu.
func (f *Feed) startLink(key string, spec transport.StreamSpec) *link {
	ctx, cancel := context.WithCancel(f.ctx)
	l := &link{key: key, spec: spec, cancel: cancel, done: make(chan struct{})}

	var lost atomic.Bool
	hooks := transport.Hooks{
		OnConnect: func(ctx context.Context) {
			if spec.Kind == models.KindDepth {
				f.resetBooks(ctx, spec.Instruments, true)
			}
			if lost.Swap(false) {
				f.notice(ctx, "[РЫНОК] ✅ WS: соединение %s восстановлено", spec.Name())
			}
		},
		OnFrame: f.route,
		OnDisconnect: func(err error) {
			if spec.Kind == models.KindDepth {
				f.resetBooks(ctx, spec.Instruments, false)
			}
			if !lost.Swap(true) {
				f.notice(ctx, "[РЫНОК] ❌ WS: соединение %s потеряно: %v", spec.Name(), err)
			}
		},
		OnState: func(st models.ConnectionState) {
			for _, sym := range spec.Instruments {
				f.registry.Publish(models.Change{Instrument: sym, Kind: models.ChangeStatus})
			}
		},
	}
	l.sup = transport.NewSupervisor(spec, f.opener, f.cfg.Reconnect, hooks, f.log)

	go func() {
		defer close(l.done)
		l.sup.Run(ctx)
	}()
	return l
}

func (f *Feed) notice(ctx context.Context, format string, args ...any) {
	if f.notifier == nil {
		return
	}
	if err := f.notifier.SendService(ctx, format, args...); err != nil {
		f.log.Warn("service notice failed", zap.Error(err))
	}
}

// resetBooks возвращает стаканы в Uninitialized: после обрыва старый стакан нельзя отдавать.
// С resync снапшот запрашивается сразу, не дожидаясь первого диффа.
func (f *Feed) resetBooks(ctx context.Context, syms []string, resync bool) {
	for _, sym := range syms {
		inst := f.lookup(sym)
		if inst == nil {
			continue
		}
		reset := inst.book.Reset
		if resync {
			reset = inst.book.Resync
		}
		if err := reset(ctx); err != nil && ctx.Err() == nil {
			f.log.Warn("book reset failed", zap.String("instrument", sym), zap.Error(err))
		}
	}
}

func (f *Feed) route(ctx context.Context, fr models.Frame) {
	switch {
	case fr.Ticker != nil:
		if f.tickers.Set(*fr.Ticker) {
			f.registry.Publish(models.Change{Instrument: fr.Ticker.Instrument, Kind: models.ChangeTicker})
		}

	case fr.Diff != nil:
		inst := f.lookup(fr.Diff.Instrument)
		if inst == nil {
			return
		}
		if err := inst.book.Push(ctx, *fr.Diff); err != nil && ctx.Err() == nil {
			f.log.Debug("diff dropped", zap.String("instrument", inst.symbol), zap.Error(err))
		}

	case fr.Trade != nil:
		inst := f.lookup(fr.Trade.Instrument)
		if inst == nil {
			return
		}
		inst.tape.Add(*fr.Trade)
		f.registry.Publish(models.Change{Instrument: inst.symbol, Kind: models.ChangeTrades})

	case fr.Candle != nil:
		inst := f.lookup(fr.Candle.Instrument)
		if inst == nil {
			return
		}
		cs, ok := inst.candles[fr.Candle.Interval]
		if !ok {
			return
		}
		if cs.Merge(*fr.Candle) == series.Stale {
			f.log.Debug("stale kline dropped",
				zap.String("instrument", inst.symbol),
				zap.String("interval", fr.Candle.Interval),
				zap.Time("open_time", fr.Candle.OpenTime))
			return
		}
		f.registry.Publish(models.Change{Instrument: inst.symbol, Kind: models.ChangeCandles, Interval: fr.Candle.Interval})
	}
}

// seedCandles подгружает историю свечей параллельно, не больше 4 запросов сразу.
// Ошибки только логируются: живой поток продолжает работать.
func (f *Feed) seedCandles(ctx context.Context, syms []string) {
	var g errgroup.Group
	g.SetLimit(4)
	for _, sym := range syms {
		for _, iv := range f.cfg.Intervals {
			sym, iv := sym, iv
			g.Go(func() error {
				history, err := f.market.Klines(ctx, sym, iv, f.cfg.CandleSeriesSize)
				if err != nil {
					if ctx.Err() == nil {
						f.log.Warn("candle seed failed",
							zap.String("instrument", sym), zap.String("interval", iv), zap.Error(err))
					}
					return nil
				}
				inst := f.lookup(sym)
				if inst == nil {
					return nil
				}
				if n := inst.candles[iv].Seed(history); n > 0 {
					f.registry.Publish(models.Change{Instrument: sym, Kind: models.ChangeCandles, Interval: iv})
				}
				return nil
			})
		}
	}
	_ = g.Wait()
}

func (f *Feed) lookup(sym string) *instrument {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.insts[sym]
}

func (f *Feed) GetTicker(sym string) (models.TickerSnapshot, bool) {
	return f.tickers.Get(models.NormSymbol(sym))
}

// GetOrderBook отдаёт стакан только в состоянии Live. depth <= 0 означает все уровни.
func (f *Feed) GetOrderBook(sym string, depth int) (models.Ladder, bool) {
	inst := f.lookup(models.NormSymbol(sym))
	if inst == nil {
		return models.Ladder{}, false
	}
	v, ok := inst.book.View()
	if !ok {
		return models.Ladder{}, false
	}
	return v.Ladder.Top(depth), true
}

func (f *Feed) GetDepth(sym string) (models.DepthCurve, bool) {
	inst := f.lookup(models.NormSymbol(sym))
	if inst == nil {
		return models.DepthCurve{}, false
	}
	v, ok := inst.book.View()
	if !ok {
		return models.DepthCurve{}, false
	}
	return v.Depth.Clone(), true
}

func (f *Feed) GetTrades(sym string) ([]models.TradePrint, bool) {
	inst := f.lookup(models.NormSymbol(sym))
	if inst == nil {
		return nil, false
	}
	return inst.tape.Snapshot(), true
}

func (f *Feed) GetCandles(sym, interval string) ([]models.Candle, bool) {
	inst := f.lookup(models.NormSymbol(sym))
	if inst == nil {
		return nil, false
	}
	cs, ok := inst.candles[interval]
	if !ok {
		return nil, false
	}
	return cs.Snapshot(), true
}

func (f *Feed) BookStatus(sym string) models.BookStatus {
	inst := f.lookup(models.NormSymbol(sym))
	if inst == nil {
		return models.BookUninitialized
	}
	return inst.book.Status()
}

// IsLive: соединение тикеров установлено.
func (f *Feed) IsLive() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, l := range f.links {
		if l.spec.Kind == models.KindTicker {
			return l.sup.Connected()
		}
	}
	return false
}

func (f *Feed) Connections() []models.ConnectionState {
	f.mu.RLock()
	out := make([]models.ConnectionState, 0, len(f.links))
	for _, l := range f.links {
		out = append(out, l.sup.State())
	}
	f.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Stream < out[j].Stream })
	return out
}

func (f *Feed) Instruments() []string {
	return f.registry.Tracked()
}

func (f *Feed) StartedAt() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.startedAt
}
