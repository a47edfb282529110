package chain

import (
	"testing"
	"testing/quick"

	pbcodec "github.com/streamingfast/firehose-ethereum/types/pb/sf/ethereum/type/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// Every odd-length (post "0x") hex string decodes as if left-padded with a
// single "0" nibble.
func TestDecodeHex_ParityRepair(t *testing.T) {
	got, err := decodeHex("field", "0xabc")
	require.NoError(t, err)
	padded, err := decodeHex("field", "0x0abc")
	require.NoError(t, err)
	assert.Equal(t, padded, got)
}

func TestDecodeHex_ParityRepair_Property(t *testing.T) {
	prop := func(nibbles []byte) bool {
		const hexDigits = "0123456789abcdef"
		if len(nibbles) == 0 {
			return true
		}
		raw := make([]byte, len(nibbles))
		for i, b := range nibbles {
			raw[i] = hexDigits[b%16]
		}
		odd := "0x" + string(raw[:len(raw)-1+len(raw)%2])
		if len(odd)%2 == 0 {
			// already even length post-prefix; skip, not the case under test
			return true
		}
		gotOdd, err1 := decodeHex("f", odd)
		gotEven, err2 := decodeHex("f", "0x0"+odd[2:])
		return err1 == nil && err2 == nil && string(gotOdd) == string(gotEven)
	}
	require.NoError(t, quick.Check(prop, nil))
}

func TestDecodeQty(t *testing.T) {
	n, err := decodeQty("f", "0x10")
	require.NoError(t, err)
	assert.Equal(t, uint64(16), n)

	n, err = decodeQty("f", "0x0")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func baseTx() Transaction {
	return Transaction{
		Hash:              "0x01",
		TransactionIndex:  0,
		From:              "0xaa",
		To:                strPtr("0xbb"),
		GasPrice:          "0x1",
		Gas:               "0x5208",
		GasUsed:           "0x5208",
		CumulativeGasUsed: "0x5208",
		Value:             "0x0",
		Input:             "0x",
		V:                 "0x1b",
		R:                 "0x1",
		S:                 "0x1",
	}
}

func TestEncodeTransaction_MissingToDefaultsToZeroAddress(t *testing.T) {
	tx := baseTx()
	tx.To = nil
	got, err := EncodeTransaction(tx)
	require.NoError(t, err)
	want, err := decodeHex("to", zeroAddress)
	require.NoError(t, err)
	assert.Equal(t, want, got.To)
}

func TestEncodeCall_Create(t *testing.T) {
	tr := Trace{
		Type: TraceCreate,
		Action: &TraceAction{
			From: strPtr("0xaa"),
			Gas:  strPtr("0x100"),
		},
		Result: nil, // missing result -> zero address, gas_used 0x0
	}
	call, err := EncodeCall(tr)
	require.NoError(t, err)
	require.NotNil(t, call)
	assert.Equal(t, pbcodec.CallType_CREATE, call.CallType)
	wantAddr, _ := decodeHex("a", zeroAddress)
	assert.Equal(t, wantAddr, call.Address)
	assert.Equal(t, uint64(0), call.GasConsumed)
}

func TestEncodeCall_CallTypeMapping(t *testing.T) {
	cases := []struct {
		in   CallType
		want pbcodec.CallType
	}{
		{CallTypeCall, pbcodec.CallType_CALL},
		{CallTypeCallCode, pbcodec.CallType_CALLCODE},
		{CallTypeDelegateCall, pbcodec.CallType_DELEGATE},
		{CallTypeStaticCall, pbcodec.CallType_STATIC},
	}
	for _, c := range cases {
		ct := c.in
		tr := Trace{
			Type: TraceCall,
			Action: &TraceAction{
				From:  strPtr("0xaa"),
				To:    strPtr("0xbb"),
				Gas:   strPtr("0x100"),
				Input: strPtr("0x"),
				Type:  &ct,
			},
		}
		call, err := EncodeCall(tr)
		require.NoError(t, err)
		assert.Equal(t, c.want, call.CallType)
	}
}

func TestEncodeCall_MissingInnerCallTypeIsZero(t *testing.T) {
	tr := Trace{
		Type: TraceCall,
		Action: &TraceAction{
			From:  strPtr("0xaa"),
			To:    strPtr("0xbb"),
			Gas:   strPtr("0x100"),
			Input: strPtr("0x"),
			Type:  nil,
		},
	}
	call, err := EncodeCall(tr)
	require.NoError(t, err)
	assert.Equal(t, pbcodec.CallType_UNSPECIFIED, call.CallType)
}

func TestEncodeCall_SuicideAndRewardDropped(t *testing.T) {
	for _, typ := range []TraceType{TraceSuicide, TraceReward} {
		call, err := EncodeCall(Trace{Type: typ})
		require.NoError(t, err)
		assert.Nil(t, call)
	}
}

// The transaction status rule derives solely from the root (index-0) call.
func TestTxTraceStatus(t *testing.T) {
	assert.Equal(t, pbcodec.TransactionTraceStatus_SUCCEEDED,
		txTraceStatus([]*pbcodec.Call{{StatusFailed: false}}))
	assert.Equal(t, pbcodec.TransactionTraceStatus_FAILED,
		txTraceStatus([]*pbcodec.Call{{StatusFailed: true}}))
	// StatusReverted alone (without StateReverted) still reports Failed,
	// not Reverted: the rule reads StateReverted, which EncodeCall never
	// populates. See txTraceStatus's doc comment.
	assert.Equal(t, pbcodec.TransactionTraceStatus_FAILED,
		txTraceStatus([]*pbcodec.Call{{StatusFailed: true, StatusReverted: true}}))
	assert.Equal(t, pbcodec.TransactionTraceStatus_REVERTED,
		txTraceStatus([]*pbcodec.Call{{StatusFailed: true, StateReverted: true}}))
	// only the root call matters, regardless of later calls' status.
	assert.Equal(t, pbcodec.TransactionTraceStatus_SUCCEEDED,
		txTraceStatus([]*pbcodec.Call{{StatusFailed: false}, {StatusFailed: true}}))
}

func TestEncodeBlock_GroupsLogsAndTracesByTransactionIndex(t *testing.T) {
	b := &Block{
		Header: BlockHeader{
			Hash:             "0x01",
			ParentHash:       "0x00",
			UncleHash:        "0x00",
			Coinbase:         "0x00",
			StateRoot:        "0x00",
			TransactionsRoot: "0x00",
			ReceiptsRoot:     "0x00",
			LogsBloom:        "0x00",
			Difficulty:       "0x0",
			TotalDifficulty:  "0x0",
			Number:           10,
			GasLimit:         "0x0",
			GasUsed:          "0x0",
			ExtraData:        "0x",
			MixHash:          "0x00",
			Nonce:            "0x0",
		},
		Transactions: []Transaction{baseTx()},
		Logs: []Log{
			{TransactionIndex: 0, LogIndex: 0, Address: "0xaa", Data: "0x", Topics: []string{"0xaa"}},
		},
		Traces: []Trace{
			{
				TransactionIndex: 0,
				Type:             TraceCall,
				Action: &TraceAction{
					From:  strPtr("0xaa"),
					To:    strPtr("0xbb"),
					Gas:   strPtr("0x100"),
					Input: strPtr("0x"),
				},
			},
		},
	}

	out, err := EncodeBlock(b)
	require.NoError(t, err)
	require.Len(t, out.TransactionTraces, 1)
	tt := out.TransactionTraces[0]
	require.Len(t, tt.Receipt.Logs, 1)
	require.Len(t, tt.Calls, 1)
	assert.Equal(t, pbcodec.TransactionTraceStatus_SUCCEEDED, tt.Status)
}
