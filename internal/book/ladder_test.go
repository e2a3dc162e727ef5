package book

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_feed/internal/models"
)

func lv(price, qty float64) models.Level { return models.Level{Price: price, Quantity: qty} }

func btcSnapshot() models.DepthSnapshot {
	return models.DepthSnapshot{
		Instrument:   "BTCUSDT",
		LastUpdateID: 100,
		Bids:         []models.Level{lv(100, 1), lv(99, 2)},
		Asks:         []models.Level{lv(101, 1), lv(102, 3)},
	}
}

func TestBookExampleScenario(t *testing.T) {
	b := FromSnapshot(btcSnapshot())

	require.NoError(t, b.ApplyDiff(models.DepthDiff{FirstUpdateID: 101, FinalUpdateID: 101, Bids: []models.Level{lv(100, 0)}}))
	l := b.Ladder()
	assert.Equal(t, []models.Level{lv(99, 2)}, l.Bids)
	assert.Equal(t, 2.0, l.BidTotal)

	require.NoError(t, b.ApplyDiff(models.DepthDiff{FirstUpdateID: 102, FinalUpdateID: 102, Asks: []models.Level{lv(101, 2)}}))
	l = b.Ladder()
	assert.Equal(t, []models.Level{lv(101, 2), lv(102, 3)}, l.Asks)
	assert.Equal(t, 5.0, l.AskTotal)
	assert.Equal(t, int64(102), l.LastUpdateID)
}

func TestFromSnapshotSortsAndDropsZeroLevels(t *testing.T) {
	b := FromSnapshot(models.DepthSnapshot{
		Instrument: "ETHUSDT",
		Bids:       []models.Level{lv(98, 1), lv(100, 2), lv(99, 0), lv(100, 3)},
		Asks:       []models.Level{lv(103, 1), lv(101, 1), lv(102, 0)},
	})
	l := b.Ladder()
	assert.Equal(t, []models.Level{lv(100, 3), lv(98, 1)}, l.Bids)
	assert.Equal(t, []models.Level{lv(101, 1), lv(103, 1)}, l.Asks)
	assert.Equal(t, 4.0, l.BidTotal)
	assert.Equal(t, 2.0, l.AskTotal)
}

func TestRemovingAbsentLevelIsNoop(t *testing.T) {
	b := FromSnapshot(btcSnapshot())
	before := b.Ladder()

	b.ApplyLevels([]models.Level{lv(97.5, 0)}, []models.Level{lv(150, 0)})

	after := b.Ladder()
	assert.Equal(t, before.Bids, after.Bids)
	assert.Equal(t, before.Asks, after.Asks)
	assert.Equal(t, before.BidTotal, after.BidTotal)
	assert.Equal(t, before.AskTotal, after.AskTotal)
}

func TestUpsertIsIdempotent(t *testing.T) {
	once := FromSnapshot(btcSnapshot())
	twice := FromSnapshot(btcSnapshot())
	bids := []models.Level{lv(99.5, 4), lv(99, 0)}
	asks := []models.Level{lv(101, 7)}

	once.ApplyLevels(bids, asks)
	twice.ApplyLevels(bids, asks)
	twice.ApplyLevels(bids, asks)

	a, b := once.Ladder(), twice.Ladder()
	assert.Equal(t, a.Bids, b.Bids)
	assert.Equal(t, a.Asks, b.Asks)
	assert.Equal(t, a.BidTotal, b.BidTotal)
	assert.Equal(t, a.AskTotal, b.AskTotal)
}

func TestReplayedDiffIsStale(t *testing.T) {
	b := FromSnapshot(btcSnapshot())
	d := models.DepthDiff{FirstUpdateID: 101, FinalUpdateID: 101, Bids: []models.Level{lv(99, 5)}}

	require.NoError(t, b.ApplyDiff(d))
	want := b.Ladder()

	require.ErrorIs(t, b.ApplyDiff(d), ErrStaleDiff)
	assert.Equal(t, want, b.Ladder())
}

func TestApplyDiffSequence(t *testing.T) {
	b := FromSnapshot(btcSnapshot())

	require.ErrorIs(t, b.ApplyDiff(models.DepthDiff{FirstUpdateID: 90, FinalUpdateID: 100}), ErrStaleDiff)

	// первый дифф после снапшота может начинаться раньше lastUpdateId+1
	require.NoError(t, b.ApplyDiff(models.DepthDiff{FirstUpdateID: 95, FinalUpdateID: 105, Asks: []models.Level{lv(104, 1)}}))

	err := b.ApplyDiff(models.DepthDiff{FirstUpdateID: 110, FinalUpdateID: 111})
	var gap *SequenceGapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, int64(106), gap.Expected)
	assert.Equal(t, int64(110), gap.Got)
	assert.Equal(t, int64(105), b.LastUpdateID())
}

func TestApplyDiffWithoutIDsSkipsSequenceChecks(t *testing.T) {
	b := FromSnapshot(btcSnapshot())
	require.NoError(t, b.ApplyDiff(models.DepthDiff{Bids: []models.Level{lv(98, 1)}}))
	assert.Len(t, b.Ladder().Bids, 3)
	assert.Equal(t, int64(100), b.LastUpdateID())
}

func TestRandomDiffsKeepInvariants(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	b := New("BTCUSDT")
	model := map[bool]map[float64]float64{true: {}, false: {}}

	for step := 0; step < 5000; step++ {
		var bids, asks []models.Level
		for n := rnd.Intn(6); n > 0; n-- {
			price := float64(900+rnd.Intn(100)) / 10
			qty := 0.0
			if rnd.Intn(3) > 0 {
				qty = float64(1+rnd.Intn(50)) / 4
			}
			if rnd.Intn(2) == 0 {
				bids = append(bids, lv(price, qty))
				model[true][price] = qty
			} else {
				asks = append(asks, lv(price+10, qty))
				model[false][price+10] = qty
			}
		}
		b.ApplyLevels(bids, asks)

		l := b.Ladder()
		checkSide(t, l.Bids, l.BidTotal, true)
		checkSide(t, l.Asks, l.AskTotal, false)
	}

	l := b.Ladder()
	assert.Equal(t, nonZero(model[true]), len(l.Bids))
	assert.Equal(t, nonZero(model[false]), len(l.Asks))
	for _, x := range l.Bids {
		assert.Equal(t, model[true][x.Price], x.Quantity)
	}
	for _, x := range l.Asks {
		assert.Equal(t, model[false][x.Price], x.Quantity)
	}
}

func checkSide(t *testing.T, levels []models.Level, total float64, desc bool) {
	t.Helper()
	var sum float64
	for i, x := range levels {
		require.Greater(t, x.Quantity, 0.0, "zero level at %v", x.Price)
		if i > 0 {
			if desc {
				require.Less(t, x.Price, levels[i-1].Price)
			} else {
				require.Greater(t, x.Price, levels[i-1].Price)
			}
		}
		sum += x.Quantity
	}
	require.InDelta(t, sum, total, 1e-9)
}

func nonZero(m map[float64]float64) int {
	n := 0
	for _, q := range m {
		if q > 0 {
			n++
		}
	}
	return n
}

func TestCurveAccumulatesFromBestPrice(t *testing.T) {
	c := Curve(FromSnapshot(btcSnapshot()).Ladder())
	assert.Equal(t, "BTCUSDT", c.Instrument)
	assert.Equal(t, []models.DepthPoint{
		{Price: 100, Quantity: 1, Cumulative: 1},
		{Price: 99, Quantity: 2, Cumulative: 3},
	}, c.Bids)
	assert.Equal(t, []models.DepthPoint{
		{Price: 101, Quantity: 1, Cumulative: 1},
		{Price: 102, Quantity: 3, Cumulative: 4},
	}, c.Asks)
}

func TestLadderIsDetachedCopy(t *testing.T) {
	b := FromSnapshot(btcSnapshot())
	l := b.Ladder()
	b.ApplyLevels([]models.Level{lv(100, 9)}, nil)
	assert.Equal(t, 1.0, l.Bids[0].Quantity)
}
