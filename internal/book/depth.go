package book

import "market_feed/internal/models"

// Curve строит кумулятивную кривую глубины из лестницы: бид и аск накапливаются
// от лучшей цены наружу.
func Curve(l models.Ladder) models.DepthCurve {
	return models.DepthCurve{
		Instrument: l.Instrument,
		Bids:       accumulate(l.Bids),
		Asks:       accumulate(l.Asks),
	}
}

func accumulate(levels []models.Level) []models.DepthPoint {
	out := make([]models.DepthPoint, len(levels))
	var sum float64
	for i, lv := range levels {
		sum += lv.Quantity
		out[i] = models.DepthPoint{Price: lv.Price, Quantity: lv.Quantity, Cumulative: sum}
	}
	return out
}
