// Package rpcnode implements the RPC node source adapter: finalized-range
// catch-up over plain JSON-RPC, and live hot tailing over a WebSocket
// "newHeads" subscription with fork detection.
//
// It satisfies adapter.HotSource, the superset capability the streaming
// engine switches to once it needs to observe the unfinalized tip.
package rpcnode

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	heap "github.com/theodesp/go-heaps"
	"github.com/theodesp/go-heaps/pairing"
	"github.com/tevino/abool"
	"go.uber.org/atomic"

	"github.com/smartcontractkit/chainlink-firehose/core/chain"
	"github.com/smartcontractkit/chainlink-firehose/core/logger"
	"github.com/smartcontractkit/chainlink-firehose/core/service"
	"github.com/smartcontractkit/chainlink-firehose/core/utils"
)

// Config configures a Source.
type Config struct {
	// HTTPURL is the node's JSON-RPC HTTP endpoint.
	HTTPURL string
	// WSURL is the node's JSON-RPC WebSocket endpoint, used for
	// eth_subscribe("newHeads"). Required for GetHotBlocks.
	WSURL string
	// FinalityConfirmations is how many blocks back from the chain head
	// the node's reported head is considered final.
	FinalityConfirmations uint64
	// AncestryDepth bounds how far back findCommonAncestor walks, comparing
	// the node's current canonical hash at each height against the
	// in-memory header ring, before giving up and falling back to the
	// ring's oldest remembered entry.
	AncestryDepth int
}

// Source is the RPC node adapter. It satisfies adapter.HotSource and
// service.Service.
type Source struct {
	cfg    Config
	client HTTPClient
	log    logger.Logger

	lifecycle utils.StartStopOnce
	ready     atomic.Bool

	connected    *abool.AtomicBool
	lastSeenHead atomic.Uint64

	mu   sync.Mutex
	ring []chain.HashAndHeight // in emission order, most recent last; heights repeat after a reorg
}

var _ service.Service = (*Source)(nil)

// New builds a Source against client (typically http.DefaultClient).
func New(cfg Config, client HTTPClient, log logger.Logger) *Source {
	if cfg.AncestryDepth == 0 {
		cfg.AncestryDepth = 256
	}
	return &Source{
		cfg:       cfg,
		client:    client,
		log:       log,
		connected: abool.New(),
	}
}

// Connected reports whether the hot-tail websocket is currently attached,
// for the admin surface's subscription introspection.
func (s *Source) Connected() bool { return s.connected.IsSet() }

// LastSeenHead reports the height of the most recent block folded into a
// HotUpdate, for the admin surface's subscription introspection.
func (s *Source) LastSeenHead() uint64 { return s.lastSeenHead.Load() }

// Start implements service.Service: it blocks until the first finalized
// height query against the node succeeds.
func (s *Source) Start() error {
	return s.lifecycle.StartOnce("rpc node adapter", func() error {
		_, err := s.GetFinalizedHeight(context.Background())
		return err
	})
}

// Close implements service.Service. The adapter holds no resources outside
// the lifetime of a single GetHotBlocks call, so there is nothing to
// release beyond marking the lifecycle stopped.
func (s *Source) Close() error {
	return s.lifecycle.StopOnce("rpc node adapter", func() error { return nil })
}

// Healthy implements service.Service.
func (s *Source) Healthy() error { return nil }

// Ready implements service.Service: ready once Start's initial
// finalized-height query has succeeded.
func (s *Source) Ready() error {
	if s.ready.Load() {
		return nil
	}
	return fmt.Errorf("rpc node adapter: not ready")
}

// GetFinalizedHeight implements adapter.FinalizedSource: the current chain
// head minus the configured confirmation count.
func (s *Source) GetFinalizedHeight(ctx context.Context) (uint64, error) {
	result, err := call(ctx, s.client, s.cfg.HTTPURL, "eth_blockNumber")
	if err != nil {
		return 0, err
	}
	s.ready.Store(true)
	head := qty(result)
	if head < s.cfg.FinalityConfirmations {
		return 0, nil
	}
	return head - s.cfg.FinalityConfirmations, nil
}

// GetFinalizedBlocks implements adapter.FinalizedSource. needAllFields is
// accepted for interface symmetry with the portal adapter; this adapter
// always fetches full receipts and traces regardless, since the per-block
// JSON-RPC round trips already pay that cost.
func (s *Source) GetFinalizedBlocks(ctx context.Context, req chain.DataRequest, needAllFields bool, emit func(chain.Block) error) error {
	to := req.To
	if to == nil {
		h, err := s.GetFinalizedHeight(ctx)
		if err != nil {
			return err
		}
		to = &h
	}
	for height := req.From; height <= *to; height++ {
		blk, err := s.fetchBlock(ctx, height)
		if err != nil {
			return err
		}
		if err := emit(blk); err != nil {
			return err
		}
	}
	return nil
}

// GetBlockHash implements adapter.HotSource.
func (s *Source) GetBlockHash(ctx context.Context, height uint64) (string, error) {
	result, err := call(ctx, s.client, s.cfg.HTTPURL, "eth_getBlockByNumber", hexQty(height), false)
	if err != nil {
		return "", err
	}
	hash := result.Get("hash").String()
	if hash == "" {
		return "", chain.NewNotFound(fmt.Sprintf("block %d", height))
	}
	return hash, nil
}

func (s *Source) fetchBlock(ctx context.Context, height uint64) (chain.Block, error) {
	blockResult, err := call(ctx, s.client, s.cfg.HTTPURL, "eth_getBlockByNumber", hexQty(height), true)
	if err != nil {
		return chain.Block{}, err
	}
	if !blockResult.Exists() {
		return chain.Block{}, chain.NewNotFound(fmt.Sprintf("block %d", height))
	}

	receiptsResult, err := call(ctx, s.client, s.cfg.HTTPURL, "eth_getBlockReceipts", hexQty(height))
	if err != nil {
		return chain.Block{}, err
	}

	tracesResult, err := call(ctx, s.client, s.cfg.HTTPURL, "debug_traceBlockByNumber", hexQty(height),
		map[string]string{"tracer": "callTracer"})
	if err != nil {
		return chain.Block{}, err
	}

	return decodeBlock(blockResult, receiptsResult, tracesResult), nil
}

func hexQty(n uint64) string {
	return hexutil.EncodeUint64(n)
}

// rememberHeader records a block's (hash, height) in the ancestry ring used
// by reorg detection, evicting the oldest entry once AncestryDepth is
// exceeded.
func (s *Source) rememberHeader(hh chain.HashAndHeight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring = append(s.ring, hh)
	if len(s.ring) > s.cfg.AncestryDepth {
		s.ring = s.ring[1:]
	}
}

// GetHotBlocks implements adapter.HotSource. It dials the node's WebSocket
// endpoint, subscribes to newHeads, and for each notification fetches the
// full block (concurrently, resequenced by a pairing heap keyed on height
// so emission stays in strictly ascending order even though fetches race),
// walking the ancestry ring to find the common ancestor whenever the new
// block's parent hash doesn't match what was last emitted at that height.
func (s *Source) GetHotBlocks(ctx context.Context, req chain.DataRequest, from chain.HashAndHeight, emit func(chain.HotUpdate) error) error {
	if s.cfg.WSURL == "" {
		return chain.NewUnsupported("hot tailing without a configured websocket endpoint")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.WSURL, nil)
	if err != nil {
		return chain.WrapUpstream(err, "rpc websocket dial")
	}
	defer conn.Close()
	s.connected.Set()
	defer s.connected.UnSet()

	sub := jsonrpcRequest{JSONRPC: "2.0", ID: 1, Method: "eth_subscribe", Params: []interface{}{"newHeads"}}
	if err := conn.WriteJSON(sub); err != nil {
		return chain.WrapUpstream(err, "rpc subscribe")
	}

	lastHead := from
	pending := pairing.New()
	pendingCount := 0
	nextToEmit := from.Height + 1

	// fetches, resolved in arbitrary order, are buffered through a Mailbox
	// and resequenced through the pairing heap below so emission stays
	// strictly ascending even though eth_getBlockByNumber/
	// eth_getBlockReceipts/debug_traceBlockByNumber for a given height may
	// take longer than the next height's.
	results := utils.NewMailbox(0)
	errs := make(chan error, 1)

	go func() {
		for {
			var msg struct {
				Params struct {
					Result struct {
						Number string `json:"number"`
					} `json:"result"`
				} `json:"params"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				select {
				case errs <- chain.WrapUpstream(err, "rpc websocket read"):
				case <-ctx.Done():
				}
				return
			}
			if msg.Params.Result.Number == "" {
				continue
			}
			height, err := hexutil.DecodeUint64(msg.Params.Result.Number)
			if err != nil {
				select {
				case errs <- chain.WrapUpstream(err, "newHeads number"):
				case <-ctx.Done():
				}
				return
			}

			go func(height uint64) {
				blk, err := s.fetchBlock(ctx, height)
				if err != nil {
					select {
					case errs <- err:
					case <-ctx.Done():
					}
					return
				}
				results.Deliver(heightItem{height: height, block: blk})
			}(height)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			return err
		case <-results.Notify():
			for {
				raw, ok := results.Retrieve()
				if !ok {
					break
				}
				pending.Insert(raw.(heightItem))
				pendingCount++
			}

			for pendingCount > 0 {
				top := pending.FindMin()
				item := top.(heightItem)
				if item.height != nextToEmit {
					break
				}
				pending.DeleteMin()
				pendingCount--

				if item.block.Header.ParentHash != lastHead.Hash && item.height == lastHead.Height+1 {
					// fork: this block's parent does not extend what we
					// last emitted. Walk back from lastHead until the
					// node's current canonical hash at some height matches
					// what we remembered there, i.e. the common ancestor.
					baseHead, err := s.findCommonAncestor(ctx, lastHead)
					if err != nil {
						return err
					}
					finalized, err := s.GetFinalizedHeight(ctx)
					if err != nil {
						return err
					}
					update := chain.HotUpdate{
						BaseHead:      baseHead,
						FinalizedHead: chain.HashAndHeight{Height: finalized},
						Blocks:        nil,
					}
					if err := emit(update); err != nil {
						return err
					}
					lastHead = baseHead
					nextToEmit = baseHead.Height + 1
					if item.height != nextToEmit {
						// the reorg replaced this block too; it is dropped,
						// and emission resumes once a newHeads notification
						// for the corrected height has been fetched.
						break
					}
				}

				hh := item.block.HashAndHeight()
				s.rememberHeader(hh)
				finalized, err := s.GetFinalizedHeight(ctx)
				if err != nil {
					return err
				}
				// BaseHead is the previously emitted tip: a non-fork
				// update's BaseHead is the deepest common ancestor with
				// what was last emitted, i.e. lastHead itself, not the
				// block being added.
				if err := emit(chain.HotUpdate{
					BaseHead:      lastHead,
					FinalizedHead: chain.HashAndHeight{Height: finalized},
					Blocks:        []chain.Block{item.block},
				}); err != nil {
					return err
				}
				lastHead = hh
				s.lastSeenHead.Store(hh.Height)
				nextToEmit++
			}
		}
	}
}

// findCommonAncestor walks backward from lastHead, height by height, asking
// the node for its current canonical hash at each one (which, since a
// reorg already happened on the node, reflects the new fork) until that
// hash matches what the ancestry ring remembered at the same height: that
// match is the deepest block both branches share. lastHead itself is
// presumed replaced (that's what makes this a fork) so the walk starts one
// below it. Bounded by AncestryDepth and by the ring's oldest remembered
// height, whichever is reached first; if no match turns up, it conservatively
// returns the oldest ring entry.
func (s *Source) findCommonAncestor(ctx context.Context, lastHead chain.HashAndHeight) (chain.HashAndHeight, error) {
	s.mu.Lock()
	ring := append([]chain.HashAndHeight(nil), s.ring...)
	s.mu.Unlock()

	if len(ring) == 0 {
		return lastHead, nil
	}

	byHeight := make(map[uint64]string, len(ring))
	for _, hh := range ring {
		byHeight[hh.Height] = hh.Hash
	}
	oldest := ring[0].Height

	height := lastHead.Height
	for i := 0; i < s.cfg.AncestryDepth && height > oldest; i++ {
		height--
		nodeHash, err := s.GetBlockHash(ctx, height)
		if err != nil {
			return chain.HashAndHeight{}, err
		}
		if known, ok := byHeight[height]; ok && known == nodeHash {
			return chain.HashAndHeight{Height: height, Hash: nodeHash}, nil
		}
	}
	return ring[0], nil
}

// heightItem is the pairing-heap element ordered by block height, used to
// resequence concurrently fetched blocks back into ascending order.
type heightItem struct {
	height uint64
	block  chain.Block
}

func (h heightItem) Compare(other heap.Item) int {
	o := other.(heightItem)
	switch {
	case h.height < o.height:
		return -1
	case h.height > o.height:
		return 1
	default:
		return 0
	}
}
