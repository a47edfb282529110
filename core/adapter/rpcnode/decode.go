package rpcnode

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tidwall/gjson"

	"github.com/smartcontractkit/chainlink-firehose/core/chain"
)

// decodeBlock translates one eth_getBlockByNumber/eth_getBlockByHash
// result (full transaction objects, "fullTx": true) plus its receipts and
// debug_traceBlockByNumber traces into the internal Block shape. Field
// names follow the standard Ethereum JSON-RPC naming (camelCase), unlike
// the archive portal's own snake_case API.
func decodeBlock(block, receipts, traces gjson.Result) chain.Block {
	header := chain.BlockHeader{
		Hash:             block.Get("hash").String(),
		ParentHash:       block.Get("parentHash").String(),
		UncleHash:        block.Get("sha3Uncles").String(),
		Coinbase:         block.Get("miner").String(),
		StateRoot:        block.Get("stateRoot").String(),
		TransactionsRoot: block.Get("transactionsRoot").String(),
		ReceiptsRoot:     block.Get("receiptsRoot").String(),
		LogsBloom:        block.Get("logsBloom").String(),
		Difficulty:       block.Get("difficulty").String(),
		TotalDifficulty:  block.Get("totalDifficulty").String(),
		Number:           qty(block.Get("number")),
		GasLimit:         block.Get("gasLimit").String(),
		GasUsed:          block.Get("gasUsed").String(),
		Timestamp:        qty(block.Get("timestamp")),
		ExtraData:        block.Get("extraData").String(),
		MixHash:          block.Get("mixHash").String(),
		Nonce:            block.Get("nonce").String(),
		Size:             qty(block.Get("size")),
	}
	if bf := block.Get("baseFeePerGas"); bf.Exists() {
		v := bf.String()
		header.BaseFeePerGas = &v
	}

	receiptsByTxHash := make(map[string]gjson.Result)
	for _, r := range receipts.Array() {
		receiptsByTxHash[r.Get("transactionHash").String()] = r
	}

	var txs []chain.Transaction
	var logs []chain.Log
	for _, t := range block.Get("transactions").Array() {
		hash := t.Get("hash").String()
		receipt := receiptsByTxHash[hash]

		tx := chain.Transaction{
			Hash:              hash,
			TransactionIndex:  uint32(qty(t.Get("transactionIndex"))),
			From:              t.Get("from").String(),
			Nonce:             qty(t.Get("nonce")),
			GasPrice:          t.Get("gasPrice").String(),
			Gas:               t.Get("gas").String(),
			GasUsed:           receipt.Get("gasUsed").String(),
			CumulativeGasUsed: receipt.Get("cumulativeGasUsed").String(),
			Value:             t.Get("value").String(),
			Input:             t.Get("input").String(),
			V:                 t.Get("v").String(),
			R:                 t.Get("r").String(),
			S:                 t.Get("s").String(),
			Type:              uint32(qty(t.Get("type"))),
		}
		if to := t.Get("to"); to.Exists() && to.String() != "" {
			v := to.String()
			tx.To = &v
		}
		if mf := t.Get("maxFeePerGas"); mf.Exists() {
			v := mf.String()
			tx.MaxFeePerGas = &v
		}
		if mp := t.Get("maxPriorityFeePerGas"); mp.Exists() {
			v := mp.String()
			tx.MaxPriorityFeePerGas = &v
		}
		txs = append(txs, tx)

		for i, l := range receipt.Get("logs").Array() {
			var topics []string
			for _, tp := range l.Get("topics").Array() {
				topics = append(topics, tp.String())
			}
			logs = append(logs, chain.Log{
				TransactionIndex: tx.TransactionIndex,
				LogIndex:         uint32(i),
				Address:          l.Get("address").String(),
				Data:             l.Get("data").String(),
				Topics:           topics,
			})
		}
	}

	var chainTraces []chain.Trace
	for _, entry := range traces.Array() {
		txIndex := uint32(0)
		if idx := entry.Get("txIndex"); idx.Exists() {
			txIndex = uint32(idx.Uint())
		}
		flattenCallTrace(entry.Get("result"), txIndex, &chainTraces)
	}

	return chain.Block{Header: header, Transactions: txs, Logs: logs, Traces: chainTraces}
}

// qty decodes a "0x"-prefixed JSON-RPC quantity; an absent or malformed
// value decodes as 0.
func qty(r gjson.Result) uint64 {
	n, _ := hexutil.DecodeUint64(r.String())
	return n
}

// flattenCallTrace walks a debug_traceBlockByNumber callTracer result tree
// (which nests "calls") into the flat Trace list the encoder expects.
func flattenCallTrace(node gjson.Result, txIndex uint32, out *[]chain.Trace) {
	if !node.Exists() {
		return
	}

	trace := chain.Trace{TransactionIndex: txIndex, Type: decodeTraceType(node.Get("type").String())}
	if e := node.Get("error"); e.Exists() {
		v := e.String()
		trace.Error = &v
	}
	if rr := node.Get("revertReason"); rr.Exists() {
		v := rr.String()
		trace.RevertReason = &v
	}

	a := &chain.TraceAction{}
	if v := node.Get("from"); v.Exists() {
		s := v.String()
		a.From = &s
	}
	if v := node.Get("to"); v.Exists() {
		s := v.String()
		a.To = &s
	}
	if v := node.Get("gas"); v.Exists() {
		s := v.String()
		a.Gas = &s
	}
	if v := node.Get("value"); v.Exists() {
		s := v.String()
		a.Value = &s
	}
	if v := node.Get("input"); v.Exists() {
		s := v.String()
		a.Input = &s
	}
	if trace.Type == chain.TraceCall {
		ct := decodeCallType(node.Get("type").String())
		a.Type = &ct
	}
	trace.Action = a

	if node.Get("output").Exists() || node.Get("gasUsed").Exists() {
		r := &chain.TraceResult{}
		if trace.Type == chain.TraceCreate {
			if v := node.Get("to"); v.Exists() {
				s := v.String()
				r.Address = &s
			}
		}
		if v := node.Get("gasUsed"); v.Exists() {
			s := v.String()
			r.GasUsed = &s
		}
		if v := node.Get("output"); v.Exists() {
			s := v.String()
			r.Output = &s
		}
		trace.Result = r
	}

	*out = append(*out, trace)

	for _, child := range node.Get("calls").Array() {
		flattenCallTrace(child, txIndex, out)
	}
}

func decodeTraceType(s string) chain.TraceType {
	switch s {
	case "CREATE", "CREATE2":
		return chain.TraceCreate
	case "SUICIDE", "SELFDESTRUCT":
		return chain.TraceSuicide
	default:
		return chain.TraceCall
	}
}

func decodeCallType(s string) chain.CallType {
	switch s {
	case "CALL":
		return chain.CallTypeCall
	case "CALLCODE":
		return chain.CallTypeCallCode
	case "DELEGATECALL":
		return chain.CallTypeDelegateCall
	case "STATICCALL":
		return chain.CallTypeStaticCall
	default:
		return chain.CallTypeUnknown
	}
}
