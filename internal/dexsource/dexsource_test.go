package dexsource

import (
	"log/slog"
	"testing"

	"binquoter/pkg/types"
)

func TestPublishCoalescesStaleSnapshot(t *testing.T) {
	t.Parallel()

	s := &Source{
		out:    make(chan *types.BinLadder, 1),
		logger: slog.Default(),
	}

	first := &types.BinLadder{ActiveID: 1}
	second := &types.BinLadder{ActiveID: 2}

	s.publish(first)
	s.publish(second)

	got := <-s.out
	if got != second {
		t.Fatalf("expected the latest snapshot to survive, got activeID=%d", got.ActiveID)
	}
	select {
	case extra := <-s.out:
		t.Fatalf("expected channel to drain to empty, got extra snapshot activeID=%d", extra.ActiveID)
	default:
	}
}
