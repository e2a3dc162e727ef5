package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"market_feed/internal/models"
)

// Feed: то, чем Syncer управляет.
type Feed interface {
	Subscribe(instruments ...string) error
	Unsubscribe(instruments ...string) error
	Instruments() []string
}

// Syncer приводит набор инструментов фида к списку из Source.
type Syncer struct {
	src     Source
	feed    Feed
	refresh time.Duration
	log     *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSyncer(src Source, feed Feed, refresh time.Duration, log *zap.Logger) *Syncer {
	return &Syncer{src: src, feed: feed, refresh: refresh, log: log.Named("watchlist")}
}

// Sync делает один проход: подписывает новые, отписывает исчезнувшие.
func (s *Syncer) Sync(ctx context.Context) error {
	want, err := s.src.List(ctx)
	if err != nil {
		return errors.Wrap(err, "watchlist list")
	}
	add, remove := diffSets(s.feed.Instruments(), want)
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}

	s.log.Info("watchlist changed", zap.Strings("add", add), zap.Strings("remove", remove))
	var errs error
	if len(add) > 0 {
		errs = multierr.Append(errs, s.feed.Subscribe(add...))
	}
	if len(remove) > 0 {
		errs = multierr.Append(errs, s.feed.Unsubscribe(remove...))
	}
	return errs
}

// Start делает первый Sync синхронно и, если refresh > 0, опрашивает источник в фоне.
func (s *Syncer) Start(ctx context.Context) error {
	if err := s.Sync(ctx); err != nil {
		return err
	}
	if s.refresh <= 0 {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx)
	return nil
}

func (s *Syncer) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Syncer) loop(ctx context.Context) {
	defer close(s.done)
	t := time.NewTicker(s.refresh)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.Sync(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("watchlist sync failed", zap.Error(err))
			}
		}
	}
}

func diffSets(have, want []string) (add, remove []string) {
	wantSet := make(map[string]struct{}, len(want))
	for _, sym := range models.NormSymbols(want) {
		wantSet[sym] = struct{}{}
	}
	haveSet := make(map[string]struct{}, len(have))
	for _, sym := range have {
		haveSet[sym] = struct{}{}
		if _, ok := wantSet[sym]; !ok {
			remove = append(remove, sym)
		}
	}
	for _, sym := range models.NormSymbols(want) {
		if _, ok := haveSet[sym]; !ok {
			add = append(add, sym)
		}
	}
	return add, remove
}
