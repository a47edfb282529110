// Package portal implements the archive portal source adapter: an HTTP
// client over the bulk archive API, exposing the FinalizedSource capability
// the streaming engine composes against. Transient transport failures are
// retried in place; the finalized height is cached and refreshed by a
// background cron job so the engine's frequent height checks don't each
// cost a round trip.
package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tidwall/gjson"

	"github.com/smartcontractkit/chainlink-firehose/core/chain"
	"github.com/smartcontractkit/chainlink-firehose/core/logger"
	"github.com/smartcontractkit/chainlink-firehose/core/service"
	"github.com/smartcontractkit/chainlink-firehose/core/utils"
)

// HTTPClient is the subset of *http.Client the adapter needs; tests
// substitute a fake.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a portal Source.
type Config struct {
	// BaseURL is the archive portal's endpoint, e.g. "https://portal.example/v1".
	BaseURL string
	// RefreshInterval is how often the background cron job refreshes the
	// cached finalized height. Zero disables the cache; every call hits
	// the portal directly.
	RefreshInterval time.Duration
}

// Source is the archive portal adapter. It satisfies
// adapter.FinalizedSource and service.Service.
type Source struct {
	cfg    Config
	client HTTPClient
	log    logger.Logger

	lifecycle utils.StartStopOnce
	ready     int32 // atomic; 1 once the first finalized-height fetch has succeeded

	mu           sync.RWMutex
	cachedHeight uint64
	cachedAt     time.Time
	cron         *cron.Cron
}

var _ service.Service = (*Source)(nil)

// New builds a Source against client (typically http.DefaultClient, or a
// fake in tests). Call Start to begin the background refresh cron (if
// cfg.RefreshInterval is non-zero) and warm the finalized-height cache.
func New(cfg Config, client HTTPClient, log logger.Logger) *Source {
	return &Source{cfg: cfg, client: client, log: log}
}

// Start implements service.Service: it schedules the background refresh
// cron, if configured, and blocks until the first finalized-height fetch
// succeeds.
func (s *Source) Start() error {
	return s.lifecycle.StartOnce("portal adapter", func() error {
		if s.cfg.RefreshInterval > 0 {
			s.cron = cron.New(cron.WithSeconds())
			spec := fmt.Sprintf("@every %s", s.cfg.RefreshInterval)
			if _, err := s.cron.AddFunc(spec, func() {
				if _, err := s.refreshFinalizedHeight(context.Background()); err != nil {
					s.log.Warnw("portal: background finalized height refresh failed", "error", err)
				}
			}); err != nil {
				return chain.WrapUpstream(err, "portal cron schedule")
			}
			s.cron.Start()
		}
		if _, err := s.refreshFinalizedHeight(context.Background()); err != nil {
			return err
		}
		atomic.StoreInt32(&s.ready, 1)
		return nil
	})
}

// Close implements service.Service: it stops the background refresh cron,
// if any.
func (s *Source) Close() error {
	return s.lifecycle.StopOnce("portal adapter", func() error {
		if s.cron != nil {
			s.cron.Stop()
		}
		return nil
	})
}

// Healthy implements service.Service. The portal adapter has no ongoing
// health signal beyond its HTTP calls succeeding or failing in place, so it
// is always healthy once constructed.
func (s *Source) Healthy() error { return nil }

// Ready implements service.Service: ready once Start's initial
// finalized-height fetch has succeeded.
func (s *Source) Ready() error {
	if atomic.LoadInt32(&s.ready) == 1 {
		return nil
	}
	return fmt.Errorf("portal adapter: not ready")
}

func (s *Source) refreshFinalizedHeight(ctx context.Context) (uint64, error) {
	h, err := s.fetchFinalizedHeight(ctx)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.cachedHeight = h
	s.cachedAt = time.Now()
	s.mu.Unlock()
	return h, nil
}

// GetFinalizedHeight implements adapter.FinalizedSource.
func (s *Source) GetFinalizedHeight(ctx context.Context) (uint64, error) {
	if s.cfg.RefreshInterval > 0 {
		s.mu.RLock()
		h, at := s.cachedHeight, s.cachedAt
		s.mu.RUnlock()
		if !at.IsZero() {
			return h, nil
		}
	}
	return s.refreshFinalizedHeight(ctx)
}

func (s *Source) fetchFinalizedHeight(ctx context.Context) (uint64, error) {
	body, err := s.get(ctx, "/finalized_height")
	if err != nil {
		return 0, err
	}
	result := gjson.GetBytes(body, "height")
	if !result.Exists() {
		return 0, chain.WrapUpstream(fmt.Errorf("missing height field"), "portal finalized_height")
	}
	return result.Uint(), nil
}

// GetFinalizedBlocks implements adapter.FinalizedSource. needAllFields is
// threaded through to the portal query so every block comes back with
// logs and traces populated.
func (s *Source) GetFinalizedBlocks(ctx context.Context, req chain.DataRequest, needAllFields bool, emit func(chain.Block) error) error {
	path := fmt.Sprintf("/blocks?from=%d&all_fields=%t", req.From, needAllFields)
	if req.To != nil {
		path += fmt.Sprintf("&to=%d", *req.To)
	}

	cursor := ""
	for {
		page := path
		if cursor != "" {
			page += "&page=" + cursor
		}

		body, err := s.get(ctx, page)
		if err != nil {
			return err
		}

		blocks := gjson.GetBytes(body, "blocks")
		if !blocks.Exists() {
			return chain.WrapUpstream(fmt.Errorf("missing blocks field"), "portal get_finalized_blocks")
		}
		for _, raw := range blocks.Array() {
			blk, err := decodeBlock(raw)
			if err != nil {
				return err
			}
			if err := emit(blk); err != nil {
				return err
			}
		}

		next := gjson.GetBytes(body, "next_page")
		if !next.Exists() || next.String() == "" {
			return nil
		}
		cursor = next.String()
	}
}

func (s *Source) get(ctx context.Context, path string) ([]byte, error) {
	var body []byte
	b := utils.NewBackoff()
	err := utils.RetryForever(ctx, b, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+path, nil)
		if err != nil {
			return chain.WrapUpstream(err, "portal request build")
		}
		resp, err := s.client.Do(httpReq)
		if err != nil {
			return chain.WrapUpstream(err, "portal request")
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return chain.WrapUpstream(fmt.Errorf("status %d", resp.StatusCode), "portal response")
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return chain.WrapUpstream(err, "portal response body")
		}
		body = data
		return nil
	})
	return body, err
}

func decodeBlock(raw gjson.Result) (chain.Block, error) {
	header := chain.BlockHeader{
		Hash:             raw.Get("header.hash").String(),
		ParentHash:       raw.Get("header.parent_hash").String(),
		UncleHash:        raw.Get("header.sha3_uncles").String(),
		Coinbase:         raw.Get("header.miner").String(),
		StateRoot:        raw.Get("header.state_root").String(),
		TransactionsRoot: raw.Get("header.transactions_root").String(),
		ReceiptsRoot:     raw.Get("header.receipts_root").String(),
		LogsBloom:        raw.Get("header.logs_bloom").String(),
		Difficulty:       raw.Get("header.difficulty").String(),
		TotalDifficulty:  raw.Get("header.total_difficulty").String(),
		Number:           raw.Get("header.number").Uint(),
		GasLimit:         raw.Get("header.gas_limit").String(),
		GasUsed:          raw.Get("header.gas_used").String(),
		Timestamp:        raw.Get("header.timestamp").Uint(),
		ExtraData:        raw.Get("header.extra_data").String(),
		MixHash:          raw.Get("header.mix_hash").String(),
		Nonce:            raw.Get("header.nonce").String(),
		Size:             raw.Get("header.size").Uint(),
	}
	if bf := raw.Get("header.base_fee_per_gas"); bf.Exists() {
		v := bf.String()
		header.BaseFeePerGas = &v
	}

	var txs []chain.Transaction
	for _, t := range raw.Get("transactions").Array() {
		txs = append(txs, decodeTransaction(t))
	}

	var logs []chain.Log
	for _, l := range raw.Get("logs").Array() {
		var topics []string
		for _, t := range l.Get("topics").Array() {
			topics = append(topics, t.String())
		}
		logs = append(logs, chain.Log{
			TransactionIndex: uint32(l.Get("transaction_index").Uint()),
			LogIndex:         uint32(l.Get("log_index").Uint()),
			Address:          l.Get("address").String(),
			Data:             l.Get("data").String(),
			Topics:           topics,
		})
	}

	var traces []chain.Trace
	for _, tr := range raw.Get("traces").Array() {
		traces = append(traces, decodeTrace(tr))
	}

	return chain.Block{Header: header, Transactions: txs, Logs: logs, Traces: traces}, nil
}

func decodeTransaction(t gjson.Result) chain.Transaction {
	tx := chain.Transaction{
		Hash:              t.Get("hash").String(),
		TransactionIndex:  uint32(t.Get("transaction_index").Uint()),
		From:              t.Get("from").String(),
		Nonce:             t.Get("nonce").Uint(),
		GasPrice:          t.Get("gas_price").String(),
		Gas:               t.Get("gas").String(),
		GasUsed:           t.Get("gas_used").String(),
		CumulativeGasUsed: t.Get("cumulative_gas_used").String(),
		Value:             t.Get("value").String(),
		Input:             t.Get("input").String(),
		V:                 t.Get("v").String(),
		R:                 t.Get("r").String(),
		S:                 t.Get("s").String(),
		Type:              uint32(t.Get("type").Uint()),
	}
	if to := t.Get("to"); to.Exists() {
		v := to.String()
		tx.To = &v
	}
	if mf := t.Get("max_fee_per_gas"); mf.Exists() {
		v := mf.String()
		tx.MaxFeePerGas = &v
	}
	if mp := t.Get("max_priority_fee_per_gas"); mp.Exists() {
		v := mp.String()
		tx.MaxPriorityFeePerGas = &v
	}
	return tx
}

func decodeTrace(tr gjson.Result) chain.Trace {
	trace := chain.Trace{
		TransactionIndex: uint32(tr.Get("transaction_index").Uint()),
		Type:             decodeTraceType(tr.Get("type").String()),
	}
	if e := tr.Get("error"); e.Exists() {
		v := e.String()
		trace.Error = &v
	}
	if rr := tr.Get("revert_reason"); rr.Exists() {
		v := rr.String()
		trace.RevertReason = &v
	}

	action := tr.Get("action")
	if action.Exists() {
		a := &chain.TraceAction{}
		if v := action.Get("from"); v.Exists() {
			s := v.String()
			a.From = &s
		}
		if v := action.Get("to"); v.Exists() {
			s := v.String()
			a.To = &s
		}
		if v := action.Get("gas"); v.Exists() {
			s := v.String()
			a.Gas = &s
		}
		if v := action.Get("value"); v.Exists() {
			s := v.String()
			a.Value = &s
		}
		if v := action.Get("input"); v.Exists() {
			s := v.String()
			a.Input = &s
		}
		if v := action.Get("call_type"); v.Exists() {
			ct := decodeCallType(v.String())
			a.Type = &ct
		}
		trace.Action = a
	}

	result := tr.Get("result")
	if result.Exists() {
		r := &chain.TraceResult{}
		if v := result.Get("gas_used"); v.Exists() {
			s := v.String()
			r.GasUsed = &s
		}
		if v := result.Get("address"); v.Exists() {
			s := v.String()
			r.Address = &s
		}
		if v := result.Get("output"); v.Exists() {
			s := v.String()
			r.Output = &s
		}
		trace.Result = r
	}

	return trace
}

func decodeTraceType(s string) chain.TraceType {
	switch s {
	case "create":
		return chain.TraceCreate
	case "suicide":
		return chain.TraceSuicide
	case "reward":
		return chain.TraceReward
	default:
		return chain.TraceCall
	}
}

func decodeCallType(s string) chain.CallType {
	switch s {
	case "call":
		return chain.CallTypeCall
	case "callcode":
		return chain.CallTypeCallCode
	case "delegatecall":
		return chain.CallTypeDelegateCall
	case "staticcall":
		return chain.CallTypeStaticCall
	default:
		return chain.CallTypeUnknown
	}
}
