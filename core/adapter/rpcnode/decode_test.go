package rpcnode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/smartcontractkit/chainlink-firehose/core/chain"
)

func TestDecodeBlock_GroupsReceiptLogsByTransaction(t *testing.T) {
	block := gjson.Parse(`{
		"hash": "0x01", "parentHash": "0x00", "sha3Uncles": "0x00", "miner": "0x00",
		"stateRoot": "0x00", "transactionsRoot": "0x00", "receiptsRoot": "0x00",
		"logsBloom": "0x00", "difficulty": "0x0", "totalDifficulty": "0x0",
		"number": "0xa", "gasLimit": "0x0", "gasUsed": "0x0", "timestamp": "0x64",
		"extraData": "0x", "mixHash": "0x00", "nonce": "0x0", "size": "0x10",
		"transactions": [{
			"hash": "0xaa", "transactionIndex": "0x0", "from": "0x1", "to": "0x2",
			"nonce": "0x0", "gasPrice": "0x1", "gas": "0x5208", "value": "0x0",
			"input": "0x", "v": "0x1b", "r": "0x1", "s": "0x1", "type": "0x0"
		}]
	}`)
	receipts := gjson.Parse(`[{
		"transactionHash": "0xaa", "gasUsed": "0x5208", "cumulativeGasUsed": "0x5208",
		"logs": [{"address": "0xaa", "data": "0x", "topics": ["0xbeef"]}]
	}]`)
	traces := gjson.Parse(`[]`)

	blk := decodeBlock(block, receipts, traces)
	require.Len(t, blk.Transactions, 1)
	require.Len(t, blk.Logs, 1)
	assert.Equal(t, uint32(0), blk.Logs[0].TransactionIndex)
	assert.Equal(t, uint64(10), blk.Header.Number)
}

func TestFlattenCallTrace_NestsCallsInOrder(t *testing.T) {
	result := gjson.Parse(`{
		"type": "CALL", "from": "0xaa", "to": "0xbb", "gas": "0x100",
		"input": "0x", "gasUsed": "0x10", "output": "0x",
		"calls": [
			{"type": "DELEGATECALL", "from": "0xbb", "to": "0xcc", "gas": "0x10", "input": "0x", "gasUsed": "0x1", "output": "0x"}
		]
	}`)

	var traces []chain.Trace
	flattenCallTrace(result, 0, &traces)

	require.Len(t, traces, 2)
	assert.Equal(t, chain.TraceCall, traces[0].Type)
	assert.Equal(t, chain.TraceCall, traces[1].Type)
	assert.Equal(t, chain.CallTypeDelegateCall, *traces[1].Action.Type)
}

func TestFlattenCallTrace_Create(t *testing.T) {
	result := gjson.Parse(`{
		"type": "CREATE", "from": "0xaa", "to": "0xbb", "gas": "0x100",
		"input": "0x", "gasUsed": "0x10", "output": "0x"
	}`)
	var traces []chain.Trace
	flattenCallTrace(result, 0, &traces)
	require.Len(t, traces, 1)
	assert.Equal(t, chain.TraceCreate, traces[0].Type)
	require.NotNil(t, traces[0].Result)
	assert.Equal(t, "0xbb", *traces[0].Result.Address)
}
