package stream

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/chainlink-firehose/core/chain"
	"github.com/smartcontractkit/chainlink-firehose/core/logger"
)

func hashFor(height uint64) string {
	return fmt.Sprintf("0x%02x", height)
}

func makeBlock(height uint64, parent string) chain.Block {
	return chain.Block{
		Header: chain.BlockHeader{
			Hash:             hashFor(height),
			ParentHash:       parent,
			UncleHash:        "0x00",
			Coinbase:         "0x00",
			StateRoot:        "0x00",
			TransactionsRoot: "0x00",
			ReceiptsRoot:     "0x00",
			LogsBloom:        "0x00",
			Difficulty:       "0x0",
			TotalDifficulty:  "0x0",
			Number:           height,
			GasLimit:         "0x0",
			GasUsed:          "0x0",
			ExtraData:        "0x",
			MixHash:          "0x00",
			Nonce:            "0x0",
		},
	}
}

type fakePortal struct {
	finalizedHeight uint64
	blocks          []chain.Block
}

func (f *fakePortal) GetFinalizedHeight(ctx context.Context) (uint64, error) {
	return f.finalizedHeight, nil
}

func (f *fakePortal) GetFinalizedBlocks(ctx context.Context, req chain.DataRequest, needAllFields bool, emit func(chain.Block) error) error {
	for _, b := range f.blocks {
		if b.Header.Number < req.From {
			continue
		}
		if req.To != nil && b.Header.Number > *req.To {
			continue
		}
		if err := emit(b); err != nil {
			return err
		}
	}
	return nil
}

type fakeRPC struct {
	finalizedHeight uint64
	blocks          []chain.Block
	hashes          map[uint64]string
	hotUpdates      []chain.HotUpdate
}

func (f *fakeRPC) GetFinalizedHeight(ctx context.Context) (uint64, error) {
	return f.finalizedHeight, nil
}

func (f *fakeRPC) GetFinalizedBlocks(ctx context.Context, req chain.DataRequest, needAllFields bool, emit func(chain.Block) error) error {
	for _, b := range f.blocks {
		if b.Header.Number < req.From {
			continue
		}
		if req.To != nil && b.Header.Number > *req.To {
			continue
		}
		if err := emit(b); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRPC) GetBlockHash(ctx context.Context, height uint64) (string, error) {
	return f.hashes[height], nil
}

func (f *fakeRPC) GetHotBlocks(ctx context.Context, req chain.DataRequest, from chain.HashAndHeight, emit func(chain.HotUpdate) error) error {
	for _, u := range f.hotUpdates {
		if err := emit(u); err != nil {
			return err
		}
	}
	return nil
}

func TestEngine_FreshPortalOnlyCatchUp(t *testing.T) {
	var blocks []chain.Block
	parent := "0x00"
	for h := uint64(0); h <= 10; h++ {
		blocks = append(blocks, makeBlock(h, parent))
		parent = hashFor(h)
	}
	portal := &fakePortal{finalizedHeight: 10, blocks: blocks}
	e := New(portal, nil, logger.Default)

	var responses []Response
	err := e.Blocks(context.Background(), Request{StartBlockNum: 0, StopBlockNum: 5}, func(r Response) error {
		responses = append(responses, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, responses, 6)
	for i, r := range responses {
		assert.Equal(t, StepNew, r.Step)
		assert.Equal(t, uint64(i), r.Block.Header.Number)
	}
}

// final_blocks_only fails before any response is emitted.
func TestEngine_FinalBlocksOnlyUnsupported(t *testing.T) {
	portal := &fakePortal{finalizedHeight: 10}
	e := New(portal, nil, logger.Default)

	called := false
	err := e.Blocks(context.Background(), Request{FinalBlocksOnly: true}, func(r Response) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, chain.KindUnsupportedErr)
	assert.False(t, called)
}

// Phase B advances state to the drained range's end hash as a bookkeeping
// step, without emitting an extra response for it.
func TestEngine_PhaseB_AdvancesStateAfterDraining(t *testing.T) {
	portal := &fakePortal{finalizedHeight: 0}
	rpcBlocks := []chain.Block{makeBlock(1, hashFor(0)), makeBlock(2, hashFor(1))}
	rpc := &fakeRPC{
		finalizedHeight: 2,
		blocks:          rpcBlocks,
		hashes:          map[uint64]string{2: hashFor(2)},
		hotUpdates:      nil,
	}
	e := New(portal, rpc, logger.Default)

	var responses []Response
	err := e.Blocks(context.Background(), Request{StartBlockNum: 1, StopBlockNum: 2}, func(r Response) error {
		responses = append(responses, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, responses, 2)
	assert.Equal(t, uint64(1), responses[0].Block.Header.Number)
	assert.Equal(t, uint64(2), responses[1].Block.Header.Number)
}

// A HotUpdate reporting base_head != last_head produces exactly one UNDO
// before the following NEW responses.
func TestEngine_Reorg(t *testing.T) {
	portal := &fakePortal{finalizedHeight: 99}
	rpc := &fakeRPC{
		finalizedHeight: 99,
		hashes:          map[uint64]string{99: hashFor(99)},
		hotUpdates: []chain.HotUpdate{
			{
				BaseHead:      chain.HashAndHeight{Height: 99, Hash: hashFor(99)},
				FinalizedHead: chain.HashAndHeight{Height: 90},
				Blocks:        []chain.Block{makeBlock(100, hashFor(99)), makeBlock(101, hashFor(100))},
			},
			{
				BaseHead:      chain.HashAndHeight{Height: 99, Hash: hashFor(99)},
				FinalizedHead: chain.HashAndHeight{Height: 90},
				Blocks: []chain.Block{
					makeBlock(100, hashFor(99)+"b"),
					makeBlock(101, hashFor(100)+"b"),
					makeBlock(102, hashFor(101)+"b"),
				},
			},
		},
	}
	e := New(portal, rpc, logger.Default)

	cursor := chain.Emit(chain.Cursor{
		Last:      chain.HashAndHeight{Height: 99, Hash: hashFor(99)},
		Finalized: chain.HashAndHeight{Height: 99, Hash: hashFor(99)},
	})

	var responses []Response
	err := e.Blocks(context.Background(), Request{Cursor: cursor}, func(r Response) error {
		responses = append(responses, r)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, responses, 6)
	assert.Equal(t, StepNew, responses[0].Step)
	assert.Equal(t, uint64(100), responses[0].Block.Header.Number)
	assert.Equal(t, StepNew, responses[1].Step)
	assert.Equal(t, uint64(101), responses[1].Block.Header.Number)

	assert.Equal(t, StepUndo, responses[2].Step)
	assert.Equal(t, uint64(101), responses[2].Block.Header.Number)

	assert.Equal(t, StepNew, responses[3].Step)
	assert.Equal(t, uint64(100), responses[3].Block.Header.Number)
	assert.Equal(t, StepNew, responses[4].Step)
	assert.Equal(t, uint64(101), responses[4].Block.Header.Number)
	assert.Equal(t, StepNew, responses[5].Step)
	assert.Equal(t, uint64(102), responses[5].Block.Header.Number)
}

func TestResolveNegativeStart(t *testing.T) {
	portal := &fakePortal{finalizedHeight: 100}
	start, err := resolveNegativeStart(context.Background(), -10, portal)
	require.NoError(t, err)
	assert.Equal(t, uint64(90), start)

	start, err = resolveNegativeStart(context.Background(), 42, portal)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), start)
}
