// Package cexfeed implements the CEX Feed Aggregator: the five reference-
// quote variants (book top, trade VWAP, cross-pair implied book, cross-pair
// implied VWAP, Kucoin book) that drive the decision engine's view of fair
// value. Every variant publishes onto a size-1 channel — a coalesced
// "latest value wins" stream — and reconnects on any error after a flat
// 5-second wait, matching the reference feed's retry discipline.
package cexfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"

	"binquoter/pkg/types"
)

const (
	reconnectWait = 5 * time.Second
	dialTimeout   = 10 * time.Second
	binanceWSBase = "wss://stream.binance.com:9443/ws"
	binanceCombinedBase = "wss://stream.binance.com:9443/stream"
	kucoinBulletURL = "https://api.kucoin.com/api/v1/bullet-public"
	implChangeThreshold = 0.0001 // 1bp — BookImpl only emits once bid or ask moves this much
)

// Feed runs one configured CEX reference-quote variant and republishes the
// latest CexData until Run's context is cancelled.
type Feed struct {
	cfg    types.CexFeedConfig
	out    chan types.CexData
	logger *slog.Logger
}

// New creates a Feed for the given configuration. Call Run to start it.
func New(cfg types.CexFeedConfig, logger *slog.Logger) *Feed {
	return &Feed{
		cfg:    cfg,
		out:    make(chan types.CexData, 1),
		logger: logger.With("component", "cexfeed", "kind", string(cfg.Kind)),
	}
}

// Out returns the channel new quotes are published on.
func (f *Feed) Out() <-chan types.CexData { return f.out }

// publish drops any unread stale value before sending so the channel always
// carries the newest quote and Run never blocks on a slow consumer.
func (f *Feed) publish(d types.CexData) {
	select {
	case <-f.out:
	default:
	}
	f.out <- d
}

// Run dials the configured feed and republishes quotes until ctx is
// cancelled, reconnecting after reconnectWait on any error.
func (f *Feed) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		var err error
		switch f.cfg.Kind {
		case types.FeedBookTop:
			err = f.runBookTop(ctx, f.cfg.Symbol1)
		case types.FeedTradeVWAP:
			err = f.runTradeVWAP(ctx, f.cfg.Symbol1, f.cfg.VolumeThreshold1)
		case types.FeedBookImpl:
			err = f.runBookImpl(ctx, f.cfg.Symbol1, f.cfg.Symbol2)
		case types.FeedTradeVWAPImpl:
			err = f.runTradeVWAPImpl(ctx, f.cfg.Symbol1, f.cfg.Symbol2, f.cfg.VolumeThreshold1, f.cfg.VolumeThreshold2)
		case types.FeedKucoinBook:
			err = f.runKucoinBook(ctx, f.cfg.Symbol1)
		default:
			f.logger.Error("unknown feed kind, not retrying")
			return
		}

		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("feed disconnected, reconnecting", "error", err, "wait", reconnectWait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectWait):
		}
	}
}

func dial(ctx context.Context, url string) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// ————————————————————————————————————————————————————————————————————————
// Binance wire formats
// ————————————————————————————————————————————————————————————————————————

type binanceBookTicker struct {
	BidPx string `json:"b"`
	BidSz string `json:"B"`
	AskPx string `json:"a"`
	AskSz string `json:"A"`
}

type binanceTrade struct {
	Price string `json:"p"`
	Qty   string `json:"q"`
}

type combinedEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// ————————————————————————————————————————————————————————————————————————
// BookTop: Binance bookTicker, emit only when bid or ask actually changes.
// ————————————————————————————————————————————————————————————————————————

func (f *Feed) runBookTop(ctx context.Context, symbol string) error {
	url := fmt.Sprintf("%s/%s@bookTicker", binanceWSBase, strings.ToLower(symbol))
	conn, err := dial(ctx, url)
	if err != nil {
		return err
	}
	defer conn.Close()

	var last string
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var bt binanceBookTicker
		if err := json.Unmarshal(msg, &bt); err != nil {
			continue
		}
		key := bt.BidPx + bt.AskPx
		if key == last {
			continue
		}
		last = key

		f.publish(types.CexData{
			BidPx: parseFloat(bt.BidPx),
			BidSz: parseFloat(bt.BidSz),
			AskPx: parseFloat(bt.AskPx),
			AskSz: parseFloat(bt.AskSz),
		})
	}
}

// ————————————————————————————————————————————————————————————————————————
// TradeVWAP: Binance trade stream, volume-windowed VWAP, bid==ask==vwap.
// ————————————————————————————————————————————————————————————————————————

// vwapWindow is a FIFO trade window evicted by cumulative volume rather
// than wall-clock time: trades are popped off the front while the running
// volume exceeds the configured threshold.
type vwapWindow struct {
	prices []float64
	sizes  []float64
	volume float64
}

func (w *vwapWindow) add(price, size float64) {
	w.prices = append(w.prices, price)
	w.sizes = append(w.sizes, size)
	w.volume += size
}

func (w *vwapWindow) evict(threshold float64) {
	for w.volume > threshold && len(w.sizes) > 1 {
		w.volume -= w.sizes[0]
		w.prices = w.prices[1:]
		w.sizes = w.sizes[1:]
	}
}

func (w *vwapWindow) vwap() (float64, bool) {
	if len(w.sizes) == 0 || w.volume == 0 {
		return 0, false
	}
	var notional float64
	for i := range w.prices {
		notional += w.prices[i] * w.sizes[i]
	}
	return notional / w.volume, true
}

func (f *Feed) runTradeVWAP(ctx context.Context, symbol string, threshold float64) error {
	url := fmt.Sprintf("%s/%s@trade", binanceWSBase, strings.ToLower(symbol))
	conn, err := dial(ctx, url)
	if err != nil {
		return err
	}
	defer conn.Close()

	win := &vwapWindow{}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var tr binanceTrade
		if err := json.Unmarshal(msg, &tr); err != nil {
			continue
		}
		win.add(parseFloat(tr.Price), parseFloat(tr.Qty))
		win.evict(threshold)

		if vwap, ok := win.vwap(); ok {
			f.publish(types.CexData{BidPx: vwap, AskPx: vwap})
		}
	}
}

// ————————————————————————————————————————————————————————————————————————
// BookImpl: implied cross-pair price = symbol1 book top / symbol2 last
// trade print. symbol2 is deliberately a trade stream, not a book stream —
// see SPEC_FULL.md's Open Questions decision #1.
// ————————————————————————————————————————————————————————————————————————

func (f *Feed) runBookImpl(ctx context.Context, symbol1, symbol2 string) error {
	bookStream := strings.ToLower(symbol1) + "@bookTicker"
	tradeStream := strings.ToLower(symbol2) + "@trade"
	url := fmt.Sprintf("%s?streams=%s/%s", binanceCombinedBase, bookStream, tradeStream)

	conn, err := dial(ctx, url)
	if err != nil {
		return err
	}
	defer conn.Close()

	var book binanceBookTicker
	var haveBook, haveTrade bool
	var tradePx float64
	var lastBid, lastAsk float64
	var haveEmitted bool

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var env combinedEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			continue
		}

		switch env.Stream {
		case bookStream:
			if err := json.Unmarshal(env.Data, &book); err != nil {
				continue
			}
			haveBook = true
		case tradeStream:
			var tr binanceTrade
			if err := json.Unmarshal(env.Data, &tr); err != nil {
				continue
			}
			tradePx = parseFloat(tr.Price)
			haveTrade = true
		default:
			continue
		}

		if !haveBook || !haveTrade || tradePx == 0 {
			continue
		}

		impliedBid := parseFloat(book.BidPx) / tradePx
		impliedAsk := parseFloat(book.AskPx) / tradePx

		if haveEmitted && lastBid != 0 && lastAsk != 0 {
			bidChange := math.Abs(impliedBid-lastBid) / lastBid
			askChange := math.Abs(impliedAsk-lastAsk) / lastAsk
			if bidChange < implChangeThreshold && askChange < implChangeThreshold {
				continue
			}
		}

		lastBid, lastAsk = impliedBid, impliedAsk
		haveEmitted = true
		f.publish(types.CexData{BidPx: impliedBid, AskPx: impliedAsk})
	}
}

// ————————————————————————————————————————————————————————————————————————
// TradeVWAPImpl: independent VWAP windows on each leg, implied = vwap1/vwap2.
// ————————————————————————————————————————————————————————————————————————

func (f *Feed) runTradeVWAPImpl(ctx context.Context, symbol1, symbol2 string, threshold1, threshold2 float64) error {
	stream1 := strings.ToLower(symbol1) + "@trade"
	stream2 := strings.ToLower(symbol2) + "@trade"
	url := fmt.Sprintf("%s?streams=%s/%s", binanceCombinedBase, stream1, stream2)

	conn, err := dial(ctx, url)
	if err != nil {
		return err
	}
	defer conn.Close()

	win1, win2 := &vwapWindow{}, &vwapWindow{}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var env combinedEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			continue
		}
		var tr binanceTrade
		if err := json.Unmarshal(env.Data, &tr); err != nil {
			continue
		}

		switch env.Stream {
		case stream1:
			win1.add(parseFloat(tr.Price), parseFloat(tr.Qty))
			win1.evict(threshold1)
		case stream2:
			win2.add(parseFloat(tr.Price), parseFloat(tr.Qty))
			win2.evict(threshold2)
		default:
			continue
		}

		vwap1, ok1 := win1.vwap()
		vwap2, ok2 := win2.vwap()
		if !ok1 || !ok2 || vwap2 == 0 {
			continue
		}

		implied := vwap1 / vwap2
		f.publish(types.CexData{BidPx: implied, AskPx: implied})
	}
}

// ————————————————————————————————————————————————————————————————————————
// KucoinBook: bullet-token handshake, then ticker subscription.
// ————————————————————————————————————————————————————————————————————————

type kucoinBulletResp struct {
	Data struct {
		Token           string `json:"token"`
		InstanceServers []struct {
			Endpoint     string `json:"endpoint"`
			PingInterval int    `json:"pingInterval"`
		} `json:"instanceServers"`
	} `json:"data"`
}

type kucoinTickerMsg struct {
	Type string `json:"type"`
	Data struct {
		BestBid     string `json:"bestBid"`
		BestBidSize string `json:"bestBidSize"`
		BestAsk     string `json:"bestAsk"`
		BestAskSize string `json:"bestAskSize"`
	} `json:"data"`
}

func (f *Feed) runKucoinBook(ctx context.Context, symbol string) error {
	httpClient := resty.New().SetTimeout(dialTimeout)

	var bullet kucoinBulletResp
	resp, err := httpClient.R().SetContext(ctx).SetResult(&bullet).Post(kucoinBulletURL)
	if err != nil {
		return fmt.Errorf("kucoin bullet: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || len(bullet.Data.InstanceServers) == 0 {
		return fmt.Errorf("kucoin bullet: unexpected response %d", resp.StatusCode())
	}

	endpoint := bullet.Data.InstanceServers[0].Endpoint
	url := fmt.Sprintf("%s?token=%s", endpoint, bullet.Data.Token)

	conn, err := dial(ctx, url)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]any{
		"id":             time.Now().UnixNano(),
		"type":           "subscribe",
		"topic":          fmt.Sprintf("/market/ticker:%s", symbol),
		"privateChannel": false,
		"response":       true,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("kucoin subscribe: %w", err)
	}

	var last string
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var tick kucoinTickerMsg
		if err := json.Unmarshal(msg, &tick); err != nil || tick.Type != "message" {
			continue
		}

		key := tick.Data.BestBid + tick.Data.BestAsk
		if key == "" || key == last {
			continue
		}
		last = key

		f.publish(types.CexData{
			BidPx: parseFloat(tick.Data.BestBid),
			BidSz: parseFloat(tick.Data.BestBidSize),
			AskPx: parseFloat(tick.Data.BestAsk),
			AskSz: parseFloat(tick.Data.BestAskSize),
		})
	}
}
