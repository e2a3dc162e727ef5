package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFeed struct {
	mu    sync.Mutex
	set   map[string]bool
	calls []string
	fail  error
}

func newFakeFeed(syms ...string) *fakeFeed {
	f := &fakeFeed{set: map[string]bool{}}
	for _, s := range syms {
		f.set[s] = true
	}
	return f
}

func (f *fakeFeed) Subscribe(syms ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	for _, s := range syms {
		f.set[s] = true
		f.calls = append(f.calls, "+"+s)
	}
	return nil
}

func (f *fakeFeed) Unsubscribe(syms ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range syms {
		delete(f.set, s)
		f.calls = append(f.calls, "-"+s)
	}
	return nil
}

func (f *fakeFeed) Instruments() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.set))
	for s := range f.set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

type listSource struct {
	mu   sync.Mutex
	syms []string
	err  error
}

func (s *listSource) List(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.syms...), s.err
}

func (s *listSource) setList(syms ...string) {
	s.mu.Lock()
	s.syms = syms
	s.mu.Unlock()
}

func TestSyncAppliesChurn(t *testing.T) {
	feed := newFakeFeed("BTCUSDT", "XRPUSDT")
	s := NewSyncer(Static{"btcusdt", "ETH-USDT", "BTCUSDT"}, feed, 0, zap.NewNop())

	require.NoError(t, s.Sync(context.Background()))
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, feed.Instruments())
	assert.Equal(t, []string{"+ETHUSDT", "-XRPUSDT"}, feed.calls)

	require.NoError(t, s.Sync(context.Background()))
	assert.Len(t, feed.calls, 2, "no churn when the set is unchanged")
}

func TestSyncKeepsFeedOnSourceError(t *testing.T) {
	feed := newFakeFeed("BTCUSDT")
	s := NewSyncer(&listSource{err: errors.New("db down")}, feed, 0, zap.NewNop())

	assert.Error(t, s.Sync(context.Background()))
	assert.Equal(t, []string{"BTCUSDT"}, feed.Instruments())
}

func TestSyncReportsFeedErrors(t *testing.T) {
	feed := newFakeFeed("BTCUSDT")
	feed.fail = errors.New("feed stopped")
	s := NewSyncer(Static{"ETHUSDT"}, feed, 0, zap.NewNop())

	err := s.Sync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feed stopped")
	assert.Empty(t, feed.Instruments(), "removal still applied")
}

func TestSyncerPollsSource(t *testing.T) {
	src := &listSource{syms: []string{"BTCUSDT"}}
	feed := newFakeFeed()
	s := NewSyncer(src, feed, 5*time.Millisecond, zap.NewNop())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.Equal(t, []string{"BTCUSDT"}, feed.Instruments())

	src.setList("ETHUSDT", "SOLUSDT")
	require.Eventually(t, func() bool {
		got := feed.Instruments()
		return len(got) == 2 && got[0] == "ETHUSDT" && got[1] == "SOLUSDT"
	}, time.Second, time.Millisecond)
}

func TestSyncerStartFailsOnFirstSync(t *testing.T) {
	s := NewSyncer(&listSource{err: errors.New("no table")}, newFakeFeed(), time.Millisecond, zap.NewNop())
	assert.Error(t, s.Start(context.Background()))
	s.Stop()
}
