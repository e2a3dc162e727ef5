package series

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_feed/internal/models"
)

func trade(id int64) models.TradePrint {
	return models.TradePrint{Instrument: "BTCUSDT", TradeID: id, Price: 100, Quantity: 1, TakerSide: models.SideBuy}
}

func TestTapeKeepsMostRecentNewestFirst(t *testing.T) {
	tape := NewTape(5)
	for id := int64(1); id <= 8; id++ {
		tape.Add(trade(id))
	}

	got := tape.Snapshot()
	require.Len(t, got, 5)
	ids := make([]int64, 0, len(got))
	for _, tr := range got {
		ids = append(ids, tr.TradeID)
	}
	assert.Equal(t, []int64{8, 7, 6, 5, 4}, ids)
}

func TestTapeBelowCapacity(t *testing.T) {
	tape := NewTape(50)
	tape.Add(trade(1))
	tape.Add(trade(2))

	got := tape.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].TradeID)
	assert.Equal(t, int64(1), got[1].TradeID)
	assert.Empty(t, NewTape(3).Snapshot())
}

func TestTapeAcceptsDuplicates(t *testing.T) {
	tape := NewTape(3)
	tape.Add(trade(7))
	tape.Add(trade(7))
	assert.Equal(t, 2, tape.Len())
}

func TestTapeSnapshotIsCopy(t *testing.T) {
	tape := NewTape(2)
	tape.Add(trade(1))
	snap := tape.Snapshot()
	tape.Add(trade(2))
	tape.Add(trade(3))
	assert.Equal(t, int64(1), snap[0].TradeID)
}
