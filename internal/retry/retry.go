package retry

import (
	"context"
	"math"
	"time"
)

// Policy: фиксированная или экспоненциальная с потолком задержка между попытками.
// Multiplier <= 1 даёт фиксированную задержку Initial.
type Policy struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
}

// Delay для попытки attempt (с нуля).
func (p Policy) Delay(attempt int) time.Duration {
	if p.Initial <= 0 {
		return 0
	}
	d := p.Initial
	if p.Multiplier > 1 && attempt > 0 {
		f := float64(p.Initial) * math.Pow(p.Multiplier, float64(attempt))
		// потолок сравниваем до перевода в Duration: 2^63 в int64 уже отрицательно
		switch {
		case p.Max > 0 && f >= float64(p.Max):
			return p.Max
		case math.IsNaN(f) || f >= float64(math.MaxInt64):
			return time.Duration(math.MaxInt64)
		}
		d = time.Duration(f)
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}

// Sleep ждёт d или отмены контекста.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
