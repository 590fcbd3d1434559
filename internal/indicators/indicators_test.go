package indicators

import (
	"testing"

	"github.com/garveslabs/polymarket-trader/internal/priceindex"
)

func closesRising(n int, start float64) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = start + float64(i)
	}
	return out
}

func TestRSIInsufficientHistory(t *testing.T) {
	if v := RSI([]float64{1, 2, 3}, 14); v != nil {
		t.Fatalf("expected nil for short history, got %+v", v)
	}
}

func TestRSIOversoldVotesUp(t *testing.T) {
	closes := make([]float64, 8)
	price := 100.0
	for i := range closes {
		closes[i] = price
		price -= 2
	}
	v := RSI(closes, 7)
	if v == nil || v.Direction != "up" {
		t.Fatalf("expected up vote on a falling series, got %+v", v)
	}
}

func TestRSINeutralZoneNoVote(t *testing.T) {
	closes := []float64{100, 101, 100, 101, 100, 101, 100, 101}
	if v := RSI(closes, 7); v != nil {
		t.Fatalf("expected no vote in neutral RSI zone, got %+v", v)
	}
}

func TestEMACrossoverRequiresHistory(t *testing.T) {
	if v := EMACrossover(closesRising(10, 100), 5, 13); v != nil {
		t.Fatalf("expected nil, slow+5 history not met, got %+v", v)
	}
}

func TestEMACrossoverUptrendVotesUp(t *testing.T) {
	v := EMACrossover(closesRising(30, 100), 5, 13)
	if v == nil || v.Direction != "up" {
		t.Fatalf("expected up vote on rising series, got %+v", v)
	}
}

func TestBollingerBandsZeroStdNoVote(t *testing.T) {
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 100
	}
	if v := BollingerBands(flat, 20, 2.0); v != nil {
		t.Fatalf("expected nil for zero-volatility series, got %+v", v)
	}
}

func TestBollingerBandsLowerBandVotesUp(t *testing.T) {
	closes := []float64{110, 108, 106, 104, 102, 100, 98, 96, 94, 92, 70}
	if v := BollingerBands(closes, 10, 2.0); v == nil || v.Direction != "up" {
		t.Fatalf("expected up vote near lower band, got %+v", v)
	}
}

func TestMomentumUptrendVotesUp(t *testing.T) {
	v := Momentum(closesRising(30, 100), 5, 15)
	if v == nil || v.Direction != "up" {
		t.Fatalf("expected up momentum vote, got %+v", v)
	}
}

func TestVWAPRequiresTenCandles(t *testing.T) {
	candles := make([]priceindex.Candle, 5)
	if v := VWAP(candles); v != nil {
		t.Fatalf("expected nil, insufficient candles, got %+v", v)
	}
}

func TestVWAPAbovePriceVotesUp(t *testing.T) {
	candles := make([]priceindex.Candle, 12)
	for i := range candles {
		candles[i] = priceindex.Candle{Open: 100, High: 101, Low: 99, Close: 100, Volume: 10}
	}
	candles[len(candles)-1].Close = 110
	candles[len(candles)-1].High = 111
	if v := VWAP(candles); v == nil || v.Direction != "up" {
		t.Fatalf("expected up vote, price above vwap, got %+v", v)
	}
}

func TestMACDRequiresHistory(t *testing.T) {
	if v := MACD(closesRising(10, 100), 12, 26, 9); v != nil {
		t.Fatalf("expected nil, insufficient history, got %+v", v)
	}
}

func TestMACDUptrendVotesUp(t *testing.T) {
	v := MACD(closesRising(40, 100), 6, 12, 6)
	if v == nil || v.Direction != "up" {
		t.Fatalf("expected up vote on sustained uptrend, got %+v", v)
	}
}

func TestHeikinAshiRequiresTenCandles(t *testing.T) {
	if v := HeikinAshi(make([]priceindex.Candle, 5)); v != nil {
		t.Fatalf("expected nil, insufficient candles, got %+v", v)
	}
}

func TestHeikinAshiBullishStreakVotesUp(t *testing.T) {
	candles := make([]priceindex.Candle, 12)
	price := 100.0
	for i := range candles {
		candles[i] = priceindex.Candle{Open: price, High: price + 2, Low: price - 0.5, Close: price + 1.5}
		price += 1.5
	}
	v := HeikinAshi(candles)
	if v == nil || v.Direction != "up" {
		t.Fatalf("expected up vote on bullish streak, got %+v", v)
	}
}

func TestGetParamsFallsBackToDefault(t *testing.T) {
	p := GetParams("unknown-timeframe")
	if p != DefaultParams {
		t.Fatalf("expected default params fallback, got %+v", p)
	}
}

func TestGetParams5m(t *testing.T) {
	p := GetParams("5m")
	if p.RSIPeriod != 7 || p.EMAFast != 5 || p.EMASlow != 13 {
		t.Fatalf("unexpected 5m params: %+v", p)
	}
}
