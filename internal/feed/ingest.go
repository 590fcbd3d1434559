package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/garveslabs/polymarket-trader/internal/logging"
)

const (
	binanceWSBase     = "wss://stream.binance.com:9443"
	reconnectDelay    = 1 * time.Second
	maxReconnectDelay = 30 * time.Second
	staleTimeout      = 60 * time.Second
)

// symbolAsset maps lowercase Binance spot trade symbols to the internal
// asset names used throughout the rest of the pipeline (priceindex,
// killshot, windowtracker all key on these).
var symbolAsset = map[string]string{
	"btcusdt": "bitcoin",
	"ethusdt": "ethereum",
	"solusdt": "solana",
	"xrpusdt": "xrp",
}

// TickSink receives parsed trade ticks. internal/priceindex.Cache
// satisfies this directly via its UpdateTick method, so the ingest loop
// never needs to import priceindex.
type TickSink interface {
	UpdateTick(asset string, price, volume float64, ts int64)
}

// tradeEvent matches the payload Binance sends for a combined-stream
// <symbol>@trade event.
type tradeEvent struct {
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

type combinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// Ingester streams live spot trades from Binance's public combined
// WebSocket and forwards them into a TickSink, reconnecting with
// exponential backoff whenever the connection drops.
type Ingester struct {
	sink   TickSink
	url    string
	assets map[string]string
}

// NewIngester builds an ingester for the given internal asset names
// (e.g. "bitcoin", "ethereum"). Unknown names are dropped with a warning
// rather than failing construction, since the asset list is operator
// config, not a compile-time constant.
func NewIngester(sink TickSink, assets []string) *Ingester {
	wanted := make(map[string]string, len(assets))
	streams := make([]string, 0, len(assets))
	for _, asset := range assets {
		symbol, ok := assetSymbol(asset)
		if !ok {
			log.Warn().Str("asset", asset).Msg("ingest: no Binance symbol mapping, skipping")
			continue
		}
		wanted[symbol] = asset
		streams = append(streams, symbol+"@trade")
	}
	url := fmt.Sprintf("%s/stream?streams=%s", binanceWSBase, strings.Join(streams, "/"))
	return &Ingester{sink: sink, url: url, assets: wanted}
}

func assetSymbol(asset string) (string, bool) {
	for symbol, name := range symbolAsset {
		if name == asset {
			return symbol, true
		}
	}
	return "", false
}

var log = logging.Component("feed")

// Start launches the reconnect loop in the background and returns
// immediately. The loop exits when ctx is cancelled.
func (i *Ingester) Start(ctx context.Context) {
	go i.loop(ctx)
}

func (i *Ingester) loop(ctx context.Context) {
	delay := reconnectDelay

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := i.connectAndConsume(ctx)
		if err == nil {
			delay = reconnectDelay
			continue
		}

		log.Warn().Err(err).Dur("retry_in", delay).Msg("ingest: connection lost, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (i *Ingester) connectAndConsume(ctx context.Context) error {
	if len(i.assets) == 0 {
		<-ctx.Done()
		return nil
	}

	c, _, err := websocket.DefaultDialer.DialContext(ctx, i.url, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	log.Info().Int("assets", len(i.assets)).Msg("ingest: connected to Binance spot trade stream")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	for {
		c.SetReadDeadline(time.Now().Add(staleTimeout))
		_, raw, err := c.ReadMessage()
		if err != nil {
			return err
		}

		var msg combinedMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		var ev tradeEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			continue
		}
		asset, ok := i.assets[strings.ToLower(ev.Symbol)]
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(ev.Price, 64)
		if err != nil {
			continue
		}
		volume, err := strconv.ParseFloat(ev.Quantity, 64)
		if err != nil {
			continue
		}
		i.sink.UpdateTick(asset, price, volume, ev.TradeTime/1000)
	}
}
