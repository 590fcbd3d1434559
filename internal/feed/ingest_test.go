package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeSink struct {
	mu    sync.Mutex
	ticks []tick
}

type tick struct {
	asset  string
	price  float64
	volume float64
	ts     int64
}

func (s *fakeSink) UpdateTick(asset string, price, volume float64, ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, tick{asset, price, volume, ts})
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ticks)
}

func TestNewIngesterBuildsStreamURLFromKnownAssets(t *testing.T) {
	sink := &fakeSink{}
	ing := NewIngester(sink, []string{"bitcoin", "xrp"})

	if !strings.Contains(ing.url, "btcusdt@trade") {
		t.Fatalf("expected stream url to include btcusdt@trade, got %s", ing.url)
	}
	if !strings.Contains(ing.url, "xrpusdt@trade") {
		t.Fatalf("expected stream url to include xrpusdt@trade, got %s", ing.url)
	}
	if len(ing.assets) != 2 {
		t.Fatalf("expected 2 tracked assets, got %d", len(ing.assets))
	}
}

func TestNewIngesterSkipsUnknownAsset(t *testing.T) {
	sink := &fakeSink{}
	ing := NewIngester(sink, []string{"bitcoin", "dogecoin"})

	if len(ing.assets) != 1 {
		t.Fatalf("expected unknown asset to be dropped, got %d tracked", len(ing.assets))
	}
}

func TestAssetSymbolRoundTrip(t *testing.T) {
	symbol, ok := assetSymbol("ethereum")
	if !ok || symbol != "ethusdt" {
		t.Fatalf("expected ethusdt for ethereum, got %q ok=%v", symbol, ok)
	}
	if _, ok := assetSymbol("not-an-asset"); ok {
		t.Fatal("expected no mapping for unknown asset")
	}
}

func TestConnectAndConsumeParsesTradeEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(
			`{"stream":"btcusdt@trade","data":{"s":"BTCUSDT","p":"50123.45","q":"0.01","T":1700000000000}}`))
		time.Sleep(50 * time.Millisecond)
	}))
	defer server.Close()

	sink := &fakeSink{}
	ing := NewIngester(sink, []string{"bitcoin"})
	ing.url = "ws" + strings.TrimPrefix(server.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	ing.connectAndConsume(ctx)

	if sink.count() != 1 {
		t.Fatalf("expected 1 tick forwarded, got %d", sink.count())
	}
	got := sink.ticks[0]
	if got.asset != "bitcoin" || got.price != 50123.45 || got.ts != 1700000000 {
		t.Fatalf("unexpected tick: %+v", got)
	}
}

func TestLoopRetriesWithBackoffUntilContextCancelled(t *testing.T) {
	sink := &fakeSink{}
	ing := NewIngester(sink, []string{"bitcoin"})
	ing.url = "ws://127.0.0.1:1/unreachable"

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	ing.loop(ctx)
}
