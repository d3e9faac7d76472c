package market

import (
	"math"
	"testing"

	"ai-trader-arena/internal/types"
)

func syntheticCandles(n int) []types.Candle {
	candles := make([]types.Candle, n)
	for i := range candles {
		// Gentle uptrend with enough wiggle for RSI to stay meaningful.
		base := 100 + float64(i)*0.5 + 2*math.Sin(float64(i)/3)
		candles[i] = types.Candle{
			OpenTime: int64(i) * 60_000,
			Open:     base,
			High:     base + 1,
			Low:      base - 1,
			Close:    base + 0.3,
			Volume:   1000,
		}
	}
	return candles
}

func TestComputeIndicatorsFullWindow(t *testing.T) {
	ind := computeIndicators(syntheticCandles(120))

	if len(ind.EMA20) != seriesTail {
		t.Errorf("EMA20 len = %d, want %d", len(ind.EMA20), seriesTail)
	}
	if len(ind.MACD) != seriesTail {
		t.Errorf("MACD len = %d, want %d", len(ind.MACD), seriesTail)
	}
	if len(ind.RSI7) != seriesTail || len(ind.RSI14) != seriesTail {
		t.Errorf("RSI lens = %d/%d, want %d", len(ind.RSI7), len(ind.RSI14), seriesTail)
	}
	if ind.ATR14 <= 0 {
		t.Errorf("ATR14 = %v, want > 0", ind.ATR14)
	}
	for _, v := range ind.RSI14 {
		if v < 0 || v > 100 {
			t.Errorf("RSI14 value %v out of [0,100]", v)
		}
	}
	for _, v := range ind.EMA20 {
		if math.IsNaN(v) {
			t.Error("EMA20 tail contains NaN")
		}
	}
}

func TestComputeIndicatorsShortWindow(t *testing.T) {
	// Too few candles for the slower indicators: they stay empty
	// instead of returning warm-up NaNs.
	ind := computeIndicators(syntheticCandles(10))
	if len(ind.EMA20) != 0 || len(ind.MACD) != 0 || len(ind.RSI14) != 0 {
		t.Errorf("expected empty slow indicators on short window, got %+v", ind)
	}
	if len(ind.RSI7) == 0 {
		t.Error("RSI7 should be computable on 10 candles")
	}
}

func TestMidPricesTail(t *testing.T) {
	mids := midPrices(syntheticCandles(50))
	if len(mids) != seriesTail {
		t.Fatalf("mid prices len = %d, want %d", len(mids), seriesTail)
	}
	c := syntheticCandles(50)[49]
	want := (c.High + c.Low) / 2
	if got := mids[len(mids)-1]; got != want {
		t.Errorf("last mid = %v, want %v", got, want)
	}
}

func TestTail(t *testing.T) {
	vs := []float64{1, 2, 3}
	if got := tail(vs, 5); len(got) != 3 {
		t.Errorf("tail on short slice = %v", got)
	}
	if got := tail([]float64{1, 2, 3, 4}, 2); got[0] != 3 || got[1] != 4 {
		t.Errorf("tail = %v, want [3 4]", got)
	}
}
