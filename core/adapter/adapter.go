// Package adapter defines the capability interfaces the streaming engine
// composes sources through. A source either can or can't serve hot blocks;
// nothing else about its identity matters to the engine.
package adapter

import (
	"context"

	"github.com/smartcontractkit/chainlink-firehose/core/chain"
)

// FinalizedSource is the capability every configured source provides:
// archive portals and RPC nodes alike can report their finalized height and
// stream a closed range of finalized blocks.
type FinalizedSource interface {
	// GetFinalizedHeight returns the highest block height the source
	// considers irreversible.
	GetFinalizedHeight(ctx context.Context) (uint64, error)

	// GetFinalizedBlocks streams blocks satisfying req in ascending height
	// order, calling emit once per block. It returns once req.To (or the
	// source's finalized height, for an open-ended request) is reached, or
	// ctx is cancelled. needAllFields requests logs/traces be populated on
	// every block, used when this source sits downstream of another
	// finalization layer.
	GetFinalizedBlocks(ctx context.Context, req chain.DataRequest, needAllFields bool, emit func(chain.Block) error) error
}

// HotSource is the additional capability only an RPC node provides: it can
// resolve a height to the hash it currently holds there, and it can tail
// new heads as they arrive, including reorgs.
type HotSource interface {
	FinalizedSource

	// GetBlockHash returns the hash the source currently holds at height,
	// or a NotFound error if the source doesn't have a block there.
	GetBlockHash(ctx context.Context, height uint64) (string, error)

	// GetHotBlocks streams HotUpdate records as new heads and reorgs occur,
	// calling emit once per update. It runs until ctx is cancelled.
	GetHotBlocks(ctx context.Context, req chain.DataRequest, from chain.HashAndHeight, emit func(chain.HotUpdate) error) error
}
