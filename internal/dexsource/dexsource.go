// Package dexsource is the DEX State Source: it polls the pair contract's
// read-only view functions and publishes bin-ladder snapshots. The decision
// engine treats it purely as "a channel of snapshots" — nothing about its
// polling cadence or ±N-bin window is visible past the channel boundary.
package dexsource

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"binquoter/internal/chain"
	"binquoter/pkg/types"
)

// Window is how many bins on either side of active_id are read per poll,
// matching the position-refresh window the reconciler uses after an
// executed action.
const Window = 10

// Source polls an MM contract on a fixed interval and publishes the latest
// bin-ladder snapshot, discarding stale unread values the same way the CEX
// feed's coalesced channel does.
type Source struct {
	mm       *chain.MM
	client   *chain.Client
	interval time.Duration
	out      chan *types.BinLadder
	logger   *slog.Logger
}

// New builds a Source polling mm every interval.
func New(client *chain.Client, mm *chain.MM, interval time.Duration, logger *slog.Logger) *Source {
	return &Source{
		mm:       mm,
		client:   client,
		interval: interval,
		out:      make(chan *types.BinLadder, 1),
		logger:   logger.With("component", "dexsource"),
	}
}

// Snapshots returns the channel of bin-ladder snapshots.
func (s *Source) Snapshots() <-chan *types.BinLadder {
	return s.out
}

func (s *Source) publish(snap *types.BinLadder) {
	select {
	case <-s.out:
	default:
	}
	s.out <- snap
}

// Run polls until ctx is cancelled. A failed poll is logged and retried on
// the next tick rather than terminating the loop: a transient archive-node
// hiccup must not take down the quoter.
func (s *Source) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		snap, err := s.poll(ctx)
		if err != nil {
			s.logger.Warn("dex poll failed, retrying next tick", "error", err)
		} else {
			s.publish(snap)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll reads active_id, bin_step, decimals, and reserves/supply across the
// ±Window bins around active_id, matching the position-refresh window the
// reconciler re-applies after every executed action.
func (s *Source) poll(ctx context.Context) (*types.BinLadder, error) {
	activeID, err := s.mm.ActiveID(ctx)
	if err != nil {
		return nil, err
	}
	binStep, err := s.mm.BinStep(ctx)
	if err != nil {
		return nil, err
	}
	xDec, yDec, err := s.mm.Decimals(ctx)
	if err != nil {
		return nil, err
	}
	block, err := s.client.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	bins := make(map[uint32]types.BinReserves, 2*Window+1)
	supply := make(map[uint32]*big.Int, 2*Window+1)
	for delta := -Window; delta <= Window; delta++ {
		id := uint32(int64(activeID) + int64(delta))
		x, y, err := s.mm.BinReserves(ctx, id)
		if err != nil {
			return nil, err
		}
		sup, err := s.mm.TotalSupply(ctx, id)
		if err != nil {
			return nil, err
		}
		if sup.Sign() == 0 {
			continue
		}
		bins[id] = types.BinReserves{X: x, Y: y}
		supply[id] = sup
	}

	return &types.BinLadder{
		TokenXDecimals: xDec,
		TokenYDecimals: yDec,
		BinStep:        binStep,
		ActiveID:       activeID,
		LastBlock:      block,
		Bins:           bins,
		Supply:         supply,
	}, nil
}
