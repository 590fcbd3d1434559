package indicators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/garveslabs/polymarket-trader/internal/logging"
)

// FearGreedTTL matches the 300-second refresh window in
// original_source/bot/indicators.py's _FNG_CACHE_TTL.
const FearGreedTTL = 300 * time.Second

var sentimentLog = logging.Component("indicators.sentiment")

// FearGreedIndexer fetches the crypto Fear & Greed Index and casts it as
// a contrarian indicator vote: buy when others are fearful, sell when
// others are greedy. Results are cached for FearGreedTTL so the hot loop
// never blocks on the upstream API.
type FearGreedIndexer struct {
	httpClient *http.Client
	endpoint   string

	mu        sync.Mutex
	cachedVal int
	cachedAt  time.Time
	hasCache  bool
}

// NewFearGreedIndexer returns a FearGreedIndexer pointed at the
// alternative.me Fear & Greed API.
func NewFearGreedIndexer() *FearGreedIndexer {
	return &FearGreedIndexer{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		endpoint:   "https://api.alternative.me/fng/?limit=1",
	}
}

type fngResponse struct {
	Data []struct {
		Value string `json:"value"`
	} `json:"data"`
}

// Vote returns the current Fear & Greed indicator vote, refreshing the
// underlying value from the API if the cache has expired. Returns nil
// when the index sits in its 45-55 neutral band or the fetch failed.
func (f *FearGreedIndexer) Vote(ctx context.Context) *Vote {
	val, ok := f.value(ctx)
	if !ok {
		return nil
	}
	return fearGreedVote(val)
}

// RawFNGValue returns the current cached/fetched Fear & Greed value
// (0-100) without classifying it into a vote, for callers like
// internal/regime that need the raw number for their own bucketing.
func (f *FearGreedIndexer) RawFNGValue(ctx context.Context) (int, bool) {
	return f.value(ctx)
}

func (f *FearGreedIndexer) value(ctx context.Context) (int, bool) {
	f.mu.Lock()
	if f.hasCache && time.Since(f.cachedAt) < FearGreedTTL {
		val := f.cachedVal
		f.mu.Unlock()
		return val, true
	}
	f.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return 0, false
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		sentimentLog.Debug().Err(err).Msg("fear & greed fetch failed")
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false
	}

	var parsed fngResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || len(parsed.Data) == 0 {
		return 0, false
	}
	var val int
	if _, err := fmt.Sscanf(parsed.Data[0].Value, "%d", &val); err != nil {
		return 0, false
	}

	f.mu.Lock()
	f.cachedVal = val
	f.cachedAt = time.Now()
	f.hasCache = true
	f.mu.Unlock()

	sentimentLog.Debug().Int("value", val).Msg("fear & greed index refreshed")
	return val, true
}

// fearGreedVote classifies a raw Fear & Greed value (0-100) into an
// indicator vote: extreme fear/fear are bullish, extreme greed/greed are
// bearish, the 45-55 band is neutral.
func fearGreedVote(fngVal int) *Vote {
	switch {
	case fngVal <= 24:
		conf := float64(25-fngVal) / 25.0
		return &Vote{Direction: "up", Confidence: clampConf(conf), RawValue: float64(fngVal)}
	case fngVal <= 44:
		conf := float64(45-fngVal) / 45.0 * 0.5
		return &Vote{Direction: "up", Confidence: maxF(conf, 0.1), RawValue: float64(fngVal)}
	case fngVal >= 75:
		conf := float64(fngVal-74) / 26.0
		return &Vote{Direction: "down", Confidence: clampConf(conf), RawValue: float64(fngVal)}
	case fngVal >= 56:
		conf := float64(fngVal-55) / 45.0 * 0.5
		return &Vote{Direction: "down", Confidence: maxF(conf, 0.1), RawValue: float64(fngVal)}
	default:
		return nil
	}
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
