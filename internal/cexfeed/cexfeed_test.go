package cexfeed

import (
	"log/slog"
	"testing"

	"binquoter/pkg/types"
)

func TestVWAPWindowBasic(t *testing.T) {
	t.Parallel()

	w := &vwapWindow{}
	w.add(100, 1)
	w.add(200, 1)

	vwap, ok := w.vwap()
	if !ok {
		t.Fatalf("expected vwap to be available")
	}
	if vwap != 150 {
		t.Fatalf("vwap = %v, want 150", vwap)
	}
}

func TestVWAPWindowEvictsByVolumeNotCount(t *testing.T) {
	t.Parallel()

	w := &vwapWindow{}
	w.add(100, 5)
	w.add(200, 5)
	w.add(300, 5)

	// total volume is 15; evicting against a threshold of 10 should drop
	// the oldest trade(s) until cumulative volume is back at or below it.
	w.evict(10)

	if w.volume > 10 {
		t.Fatalf("volume after evict = %v, want <= 10", w.volume)
	}
	if len(w.prices) == 0 {
		t.Fatalf("evict should never empty the window entirely")
	}
	// the oldest trade (100) should have been evicted first
	for _, p := range w.prices {
		if p == 100 {
			t.Fatalf("oldest trade should have been evicted, prices=%v", w.prices)
		}
	}
}

func TestVWAPWindowEmptyReturnsNotOK(t *testing.T) {
	t.Parallel()

	w := &vwapWindow{}
	if _, ok := w.vwap(); ok {
		t.Fatalf("empty window should not report a vwap")
	}
}

func TestFeedPublishCoalescesStaleValue(t *testing.T) {
	t.Parallel()

	f := &Feed{
		cfg:    types.CexFeedConfig{Kind: types.FeedBookTop, Symbol1: "ETHUSDT"},
		out:    make(chan types.CexData, 1),
		logger: slog.Default(),
	}

	f.publish(types.CexData{BidPx: 1})
	f.publish(types.CexData{BidPx: 2})

	// only the latest value should be present; the channel never blocks and
	// never queues more than one pending value.
	select {
	case v := <-f.out:
		if v.BidPx != 2 {
			t.Fatalf("got bidpx %v, want 2 (latest value should win)", v.BidPx)
		}
	default:
		t.Fatalf("expected a value on the channel")
	}

	select {
	case v := <-f.out:
		t.Fatalf("expected channel to be drained, got extra value %+v", v)
	default:
	}
}

func TestParseFloatHandlesEmptyString(t *testing.T) {
	t.Parallel()

	if got := parseFloat(""); got != 0 {
		t.Fatalf("parseFloat(\"\") = %v, want 0", got)
	}
	if got := parseFloat("1.5"); got != 1.5 {
		t.Fatalf("parseFloat(\"1.5\") = %v, want 1.5", got)
	}
}
