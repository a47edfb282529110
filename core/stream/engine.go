package stream

import (
	"context"

	pbcodec "github.com/streamingfast/firehose-ethereum/types/pb/sf/ethereum/type/v2"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/smartcontractkit/chainlink-firehose/core/adapter"
	"github.com/smartcontractkit/chainlink-firehose/core/chain"
	"github.com/smartcontractkit/chainlink-firehose/core/logger"
)

// Step mirrors the Firehose v2 ForkStep the response carries.
type Step int

const (
	StepNew Step = iota
	StepUndo
)

func (s Step) String() string {
	if s == StepUndo {
		return "UNDO"
	}
	return "NEW"
}

// Request is a subscription request, decoupled from its wire (protobuf)
// representation so the engine has no gRPC dependency.
type Request struct {
	StartBlockNum   int64
	StopBlockNum    uint64
	Cursor          string
	FinalBlocksOnly bool
	Transforms      []*anypb.Any
}

// Response is one emitted subscription message.
type Response struct {
	Block  *pbcodec.Block
	Step   Step
	Cursor string
}

// Engine composes the cursor codec, filter compiler, source adapters, and
// block encoder into one subscription's three-phase state machine: portal
// catch-up, RPC finalized catch-up, live tail.
type Engine struct {
	Portal adapter.FinalizedSource
	RPC    adapter.HotSource // nil if no RPC node is configured
	Log    logger.Logger
}

// New builds an Engine. rpc may be nil.
func New(portal adapter.FinalizedSource, rpc adapter.HotSource, log logger.Logger) *Engine {
	return &Engine{Portal: portal, RPC: rpc, Log: log}
}

// Blocks runs one subscription to completion, calling emit once per
// Response in strict emission order. It returns when the requested stop
// block is reached, when an adapter or emit returns an error, or when ctx
// is cancelled.
func (e *Engine) Blocks(ctx context.Context, req Request, emit func(Response) error) error {
	if req.FinalBlocksOnly {
		return chain.NewUnsupported("final_blocks_only")
	}

	logs, traces, err := chain.CompileFilters(req.Transforms)
	if err != nil {
		return err
	}

	preferred := e.Portal
	if e.RPC != nil {
		preferred = e.RPC
	}
	startBlock, err := resolveNegativeStart(ctx, req.StartBlockNum, preferred)
	if err != nil {
		return err
	}

	var stop *uint64
	if req.StopBlockNum != 0 {
		stop = &req.StopBlockNum
	}

	var state *State
	if req.Cursor != "" {
		c, err := chain.Parse(req.Cursor)
		if err != nil {
			return err
		}
		state = NewStateFromCursor(c)
	} else {
		state = NewState()
	}

	done, err := e.phaseA(ctx, state, startBlock, stop, logs, traces, emit)
	if err != nil || done {
		return err
	}

	if e.RPC == nil {
		return nil
	}

	done, err = e.phaseB(ctx, state, startBlock, stop, logs, traces, emit)
	if err != nil || done {
		return err
	}

	return e.phaseC(ctx, state, startBlock, stop, logs, traces, emit)
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func resolveNegativeStart(ctx context.Context, startBlockNum int64, source adapter.FinalizedSource) (uint64, error) {
	if startBlockNum >= 0 {
		return uint64(startBlockNum), nil
	}
	delta := uint64(-startBlockNum)
	head, err := source.GetFinalizedHeight(ctx)
	if err != nil {
		return 0, err
	}
	if head < delta {
		return 0, nil
	}
	return head - delta, nil
}

// phaseA is the portal catch-up phase. It returns done=true once the
// subscription has terminated (stop reached, or no RPC configured so
// there's nothing further to do).
func (e *Engine) phaseA(ctx context.Context, state *State, startBlock uint64, stop *uint64,
	logs []chain.LogRequest, traces []chain.TraceRequest, emit func(Response) error) (bool, error) {

	hp, err := e.Portal.GetFinalizedHeight(ctx)
	if err != nil {
		return false, err
	}

	if int64(hp) > state.CurrentBlock() || e.RPC == nil {
		dataReq := chain.DataRequest{
			From:   max64(state.NextBlock(), startBlock),
			To:     stop,
			Logs:   logs,
			Traces: traces,
		}
		needAllFields := e.RPC != nil

		err := e.Portal.GetFinalizedBlocks(ctx, dataReq, needAllFields, func(blk chain.Block) error {
			return e.emitNew(state, blk, blk.HashAndHeight(), emit)
		})
		if err != nil {
			return false, err
		}

		if stop != nil && uint64(state.CurrentBlock()) == *stop {
			return true, nil
		}
	}

	if e.RPC == nil {
		return true, nil
	}
	return false, nil
}

// phaseB is the RPC finalized catch-up phase. After draining the range it
// advances state to the range end's exact (hash, height) so phase C has a
// precise fork baseline.
func (e *Engine) phaseB(ctx context.Context, state *State, startBlock uint64, stop *uint64,
	logs []chain.LogRequest, traces []chain.TraceRequest, emit func(Response) error) (bool, error) {

	hr, err := e.RPC.GetFinalizedHeight(ctx)
	if err != nil {
		return false, err
	}

	if int64(hr) <= state.CurrentBlock() {
		return false, nil
	}

	to := hr
	if stop != nil {
		to = min64(*stop, hr)
	}

	dataReq := chain.DataRequest{
		From:   max64(state.NextBlock(), startBlock),
		To:     &to,
		Logs:   logs,
		Traces: traces,
	}
	err = e.RPC.GetFinalizedBlocks(ctx, dataReq, true, func(blk chain.Block) error {
		return e.emitNew(state, blk, blk.HashAndHeight(), emit)
	})
	if err != nil {
		return false, err
	}

	hash, err := e.RPC.GetBlockHash(ctx, to)
	if err != nil {
		return false, err
	}
	state.Update(chain.HashAndHeight{Height: to, Hash: hash})

	if stop != nil && uint64(state.CurrentBlock()) == *stop {
		return true, nil
	}
	return false, nil
}

// phaseC is the live-tailing phase: each HotUpdate whose BaseHead differs
// from the last emitted head produces one UNDO before its NEW blocks.
func (e *Engine) phaseC(ctx context.Context, state *State, startBlock uint64, stop *uint64,
	logs []chain.LogRequest, traces []chain.TraceRequest, emit func(Response) error) error {

	dataReq := chain.DataRequest{
		From:   max64(state.NextBlock(), startBlock),
		To:     stop,
		Logs:   logs,
		Traces: traces,
	}

	lastHead := state.Last()

	err := e.RPC.GetHotBlocks(ctx, dataReq, lastHead, func(update chain.HotUpdate) error {
		newHead := update.BaseHead
		if len(update.Blocks) > 0 {
			newHead = update.Blocks[len(update.Blocks)-1].HashAndHeight()
		}

		if update.BaseHead != lastHead {
			undoBlock, err := chain.EncodeUndoHeader(lastHead.Height, update.BaseHead.Hash)
			if err != nil {
				return err
			}
			cursor := chain.Emit(chain.Cursor{Last: update.BaseHead, Finalized: update.FinalizedHead})
			if err := emit(Response{Block: undoBlock, Step: StepUndo, Cursor: cursor}); err != nil {
				return err
			}
		}

		for _, blk := range update.Blocks {
			hh := blk.HashAndHeight()
			encoded, err := chain.EncodeBlock(&blk)
			if err != nil {
				return err
			}
			state.Update(hh)
			cursor := chain.Emit(chain.Cursor{Last: hh, Finalized: update.FinalizedHead})
			if err := emit(Response{Block: encoded, Step: StepNew, Cursor: cursor}); err != nil {
				return err
			}
			if stop != nil && hh.Height == *stop {
				return errStop
			}
		}

		lastHead = newHead
		return nil
	})

	if err == errStop {
		return nil
	}
	return err
}

// errStop is a sentinel used to unwind GetHotBlocks once the requested
// stop height has been emitted; it is never returned to callers.
var errStop = &stopError{}

type stopError struct{}

func (*stopError) Error() string { return "stop block reached" }

func (e *Engine) emitNew(state *State, blk chain.Block, hh chain.HashAndHeight, emit func(Response) error) error {
	encoded, err := chain.EncodeBlock(&blk)
	if err != nil {
		return err
	}
	state.Update(hh)
	cursor := chain.Emit(state.Cursor())
	return emit(Response{Block: encoded, Step: StepNew, Cursor: cursor})
}

// SingleBlock resolves one block for the Block RPC. When the requested
// height is beyond the portal's finalized height but still within the RPC
// node's finalized height, the RPC node is consulted only to confirm the
// height is final; the fetch itself still goes to the portal.
func (e *Engine) SingleBlock(ctx context.Context, height uint64) (*pbcodec.Block, error) {
	portalHeight, err := e.Portal.GetFinalizedHeight(ctx)
	if err != nil {
		return nil, err
	}

	eligible := height <= portalHeight
	if !eligible {
		if e.RPC == nil {
			return nil, chain.NewNotFound("block")
		}
		rpcHeight, err := e.RPC.GetFinalizedHeight(ctx)
		if err != nil {
			return nil, err
		}
		if height > rpcHeight {
			return nil, chain.NewNotFound("block")
		}
		eligible = true
	}
	if !eligible {
		return nil, chain.NewNotFound("block")
	}

	req := chain.DataRequest{
		From:         height,
		To:           &height,
		Logs:         []chain.LogRequest{{}},
		Transactions: []chain.TxRequest{{}},
		Traces:       []chain.TraceRequest{{}},
	}

	var result *pbcodec.Block
	err = e.Portal.GetFinalizedBlocks(ctx, req, true, func(blk chain.Block) error {
		if result != nil {
			return nil
		}
		encoded, err := chain.EncodeBlock(&blk)
		if err != nil {
			return err
		}
		result = encoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, chain.NewNotFound("block")
	}
	return result, nil
}
