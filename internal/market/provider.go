// Package market produces point-in-time snapshots of a symbol from
// Binance USDT-margined futures market data, enriched with the
// technical series the oracle prompt expects.
package market

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/markcheno/go-talib"

	"ai-trader-arena/internal/interfaces"
	"ai-trader-arena/internal/trace"
	"ai-trader-arena/internal/types"
)

// seriesTail is how many recent indicator points the snapshot carries.
// The oracle reads trends from the last few values; full history only
// inflates the prompt.
const seriesTail = 10

// klineClient is the slice of the futures API the provider needs.
type klineClient interface {
	NewKlinesService() *futures.KlinesService
	NewGetOpenInterestService() *futures.GetOpenInterestService
	NewPremiumIndexService() *futures.PremiumIndexService
}

type Provider struct {
	client klineClient
	pool   interfaces.PoolProvider

	shortInterval string
	longInterval  string
	shortLimit    int
	longLimit     int
}

var _ interfaces.SnapshotProvider = (*Provider)(nil)

type Options struct {
	ShortInterval string
	LongInterval  string
	ShortLimit    int
	LongLimit     int
}

// NewProvider builds a market data provider. Market data endpoints are
// public, so no credentials are required.
func NewProvider(client *futures.Client, pool interfaces.PoolProvider, opts Options) *Provider {
	return &Provider{
		client:        client,
		pool:          pool,
		shortInterval: opts.ShortInterval,
		longInterval:  opts.LongInterval,
		shortLimit:    opts.ShortLimit,
		longLimit:     opts.LongLimit,
	}
}

// FetchSnapshot assembles the two-timeframe view of one symbol.
func (p *Provider) FetchSnapshot(ctx context.Context, symbol string) (*types.MarketSnapshot, error) {
	ctx, span := trace.StartSpan(ctx, "market-fetch-snapshot")
	defer span.End()

	short, err := p.fetchTimeframe(ctx, symbol, p.shortInterval, p.shortLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s klines: %w", symbol, p.shortInterval, err)
	}
	long, err := p.fetchTimeframe(ctx, symbol, p.longInterval, p.longLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s klines: %w", symbol, p.longInterval, err)
	}
	if len(short.Candles) == 0 {
		return nil, fmt.Errorf("no %s candles for %s", p.shortInterval, symbol)
	}
	price := short.Candles[len(short.Candles)-1].Close

	snap := &types.MarketSnapshot{
		Symbol:       symbol,
		Timestamp:    time.Now().UTC(),
		CurrentPrice: price,
		ShortTerm:    short,
		LongTerm:     long,
		InPool:       p.pool != nil && p.pool.Contains(symbol),
	}

	// Open interest and funding are advisory; a gap in either does not
	// invalidate the snapshot.
	if oi, err := p.client.NewGetOpenInterestService().Symbol(symbol).Do(ctx); err == nil {
		contracts := parseFloat(oi.OpenInterest)
		snap.OpenInterest = contracts * price
	}
	if idx, err := p.client.NewPremiumIndexService().Symbol(symbol).Do(ctx); err == nil && len(idx) > 0 {
		snap.FundingRate = parseFloat(idx[0].LastFundingRate)
	}

	return snap, nil
}

func (p *Provider) fetchTimeframe(ctx context.Context, symbol, interval string, limit int) (types.TimeframeData, error) {
	klines, err := p.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return types.TimeframeData{}, err
	}

	candles := make([]types.Candle, len(klines))
	for i, k := range klines {
		candles[i] = types.Candle{
			OpenTime: k.OpenTime,
			Open:     parseFloat(k.Open),
			High:     parseFloat(k.High),
			Low:      parseFloat(k.Low),
			Close:    parseFloat(k.Close),
			Volume:   parseFloat(k.Volume),
		}
	}

	return types.TimeframeData{
		Interval:   interval,
		Candles:    tailCandles(candles, seriesTail),
		MidPrices:  midPrices(candles),
		Indicators: computeIndicators(candles),
	}, nil
}

// computeIndicators derives the technical series from a candle window.
// Series shorter than an indicator's warm-up period come back empty
// rather than NaN-padded.
func computeIndicators(candles []types.Candle) types.IndicatorSeries {
	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	var out types.IndicatorSeries
	if n > 20 {
		out.EMA20 = tail(talib.Ema(closes, 20), seriesTail)
	}
	if n > 34 { // 26-period slow EMA + 9-period signal warm-up
		macd, _, _ := talib.Macd(closes, 12, 26, 9)
		out.MACD = tail(macd, seriesTail)
	}
	if n > 7 {
		out.RSI7 = tail(talib.Rsi(closes, 7), seriesTail)
	}
	if n > 14 {
		out.RSI14 = tail(talib.Rsi(closes, 14), seriesTail)
	}
	if n > 14 {
		atr := talib.Atr(highs, lows, closes, 14)
		out.ATR14 = atr[len(atr)-1]
	}
	return out
}

func midPrices(candles []types.Candle) []float64 {
	mids := make([]float64, len(candles))
	for i, c := range candles {
		mids[i] = (c.High + c.Low) / 2
	}
	return tail(mids, seriesTail)
}

func tail(vs []float64, n int) []float64 {
	if len(vs) <= n {
		return vs
	}
	return vs[len(vs)-n:]
}

func tailCandles(cs []types.Candle, n int) []types.Candle {
	if len(cs) <= n {
		return cs
	}
	return cs[len(cs)-n:]
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
