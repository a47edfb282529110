package chain

import (
	"encoding/hex"
	"strconv"
	"strings"

	pbcodec "github.com/streamingfast/firehose-ethereum/types/pb/sf/ethereum/type/v2"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// decodeHex decodes a "0x"-prefixed hex string with parity repair: a string
// of odd length (after the prefix) is left-padded with a single "0" nibble
// before decoding. field labels any error.
func decodeHex(field, value string) ([]byte, error) {
	trimmed := strings.TrimPrefix(value, "0x")
	if len(trimmed)%2 != 0 {
		trimmed = "0" + trimmed
	}
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, NewEncoding(field, value)
	}
	return b, nil
}

// decodeQty strips the "0x" prefix and parses the remainder as base-16 into
// a uint64.
func decodeQty(field, value string) (uint64, error) {
	trimmed := strings.TrimPrefix(value, "0x")
	if trimmed == "" {
		trimmed = "0"
	}
	n, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		return 0, NewEncoding(field, value)
	}
	return n, nil
}

func decodeBigInt(field, value string) (*pbcodec.BigInt, error) {
	b, err := decodeHex(field, value)
	if err != nil {
		return nil, err
	}
	return &pbcodec.BigInt{Bytes: b}, nil
}

func decodeOptionalBigInt(field string, value *string) (*pbcodec.BigInt, error) {
	if value == nil {
		return nil, nil
	}
	return decodeBigInt(field, *value)
}

// EncodeHeader translates an internal BlockHeader into its Firehose
// protobuf form.
func EncodeHeader(h BlockHeader) (*pbcodec.BlockHeader, error) {
	parentHash, err := decodeHex("parent hash", h.ParentHash)
	if err != nil {
		return nil, err
	}
	uncleHash, err := decodeHex("sha3 uncles", h.UncleHash)
	if err != nil {
		return nil, err
	}
	coinbase, err := decodeHex("miner", h.Coinbase)
	if err != nil {
		return nil, err
	}
	stateRoot, err := decodeHex("state root", h.StateRoot)
	if err != nil {
		return nil, err
	}
	txRoot, err := decodeHex("transactions root", h.TransactionsRoot)
	if err != nil {
		return nil, err
	}
	receiptRoot, err := decodeHex("receipts root", h.ReceiptsRoot)
	if err != nil {
		return nil, err
	}
	logsBloom, err := decodeHex("logs bloom", h.LogsBloom)
	if err != nil {
		return nil, err
	}
	difficulty, err := decodeBigInt("difficulty", h.Difficulty)
	if err != nil {
		return nil, err
	}
	totalDifficulty, err := decodeBigInt("total difficulty", h.TotalDifficulty)
	if err != nil {
		return nil, err
	}
	gasLimit, err := decodeQty("gas limit", h.GasLimit)
	if err != nil {
		return nil, err
	}
	gasUsed, err := decodeQty("gas used", h.GasUsed)
	if err != nil {
		return nil, err
	}
	extraData, err := decodeHex("extra data", h.ExtraData)
	if err != nil {
		return nil, err
	}
	mixHash, err := decodeHex("mix hash", h.MixHash)
	if err != nil {
		return nil, err
	}
	nonce, err := decodeQty("nonce", h.Nonce)
	if err != nil {
		return nil, err
	}
	hash, err := decodeHex("hash", h.Hash)
	if err != nil {
		return nil, err
	}
	baseFee, err := decodeOptionalBigInt("base fee per gas", h.BaseFeePerGas)
	if err != nil {
		return nil, err
	}

	return &pbcodec.BlockHeader{
		ParentHash:       parentHash,
		UncleHash:        uncleHash,
		Coinbase:         coinbase,
		StateRoot:        stateRoot,
		TransactionsRoot: txRoot,
		ReceiptRoot:      receiptRoot,
		LogsBloom:        logsBloom,
		Difficulty:       difficulty,
		TotalDifficulty:  totalDifficulty,
		Number:           h.Number,
		GasLimit:         gasLimit,
		GasUsed:          gasUsed,
		Timestamp:        &timestamppb.Timestamp{Seconds: int64(h.Timestamp)},
		ExtraData:        extraData,
		MixHash:          mixHash,
		Nonce:            nonce,
		Hash:             hash,
		BaseFeePerGas:    baseFee,
	}, nil
}

// EncodeTransaction translates a transaction's non-call fields.
func EncodeTransaction(tx Transaction) (*pbcodec.TransactionTrace, error) {
	to := tx.To
	toStr := zeroAddress
	if to != nil {
		toStr = *to
	}
	toBytes, err := decodeHex("tx to", toStr)
	if err != nil {
		return nil, err
	}
	gasPrice, err := decodeBigInt("tx gas price", tx.GasPrice)
	if err != nil {
		return nil, err
	}
	gasLimit, err := decodeQty("tx gas limit", tx.Gas)
	if err != nil {
		return nil, err
	}
	gasUsed, err := decodeQty("tx gas used", tx.GasUsed)
	if err != nil {
		return nil, err
	}
	value, err := decodeBigInt("tx value", tx.Value)
	if err != nil {
		return nil, err
	}
	input, err := decodeHex("tx input", tx.Input)
	if err != nil {
		return nil, err
	}
	v, err := decodeHex("tx v", tx.V)
	if err != nil {
		return nil, err
	}
	r, err := decodeHex("tx r", tx.R)
	if err != nil {
		return nil, err
	}
	s, err := decodeHex("tx s", tx.S)
	if err != nil {
		return nil, err
	}
	hash, err := decodeHex("tx hash", tx.Hash)
	if err != nil {
		return nil, err
	}
	from, err := decodeHex("tx from", tx.From)
	if err != nil {
		return nil, err
	}
	maxFee, err := decodeOptionalBigInt("tx max fee", tx.MaxFeePerGas)
	if err != nil {
		return nil, err
	}
	maxPriority, err := decodeOptionalBigInt("tx max priority", tx.MaxPriorityFeePerGas)
	if err != nil {
		return nil, err
	}

	return &pbcodec.TransactionTrace{
		To:                   toBytes,
		Nonce:                tx.Nonce,
		GasPrice:             gasPrice,
		GasLimit:             gasLimit,
		GasUsed:              gasUsed,
		Value:                value,
		Input:                input,
		V:                    v,
		R:                    r,
		S:                    s,
		Type:                 pbcodec.TransactionTrace_Type(tx.Type),
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: maxPriority,
		Index:                tx.TransactionIndex,
		Hash:                 hash,
		From:                 from,
		Status:               pbcodec.TransactionTraceStatus_UNKNOWN,
	}, nil
}

// EncodeLog translates a single log entry.
func EncodeLog(l Log) (*pbcodec.Log, error) {
	address, err := decodeHex("log address", l.Address)
	if err != nil {
		return nil, err
	}
	data, err := decodeHex("log data", l.Data)
	if err != nil {
		return nil, err
	}
	topics := make([][]byte, len(l.Topics))
	for i, t := range l.Topics {
		tb, err := decodeHex("log topic", t)
		if err != nil {
			return nil, err
		}
		topics[i] = tb
	}
	return &pbcodec.Log{
		Address:    address,
		Data:       data,
		BlockIndex: l.LogIndex,
		Topics:     topics,
		Index:      l.TransactionIndex,
	}, nil
}

// EncodeCall translates one trace into a Call message. Suicide and Reward
// traces are dropped from a block's call list: (nil, nil).
func EncodeCall(tr Trace) (*pbcodec.Call, error) {
	switch tr.Type {
	case TraceCreate:
		return encodeCreateCall(tr)
	case TraceCall:
		return encodeRegularCall(tr)
	case TraceSuicide, TraceReward:
		return nil, nil
	default:
		return nil, nil
	}
}

func traceFailure(tr Trace) (failed, reverted bool, reason string) {
	failed = tr.Error != nil || tr.RevertReason != nil
	reverted = tr.RevertReason != nil
	if tr.Error != nil {
		reason = *tr.Error
	} else if tr.RevertReason != nil {
		reason = *tr.RevertReason
	}
	return
}

func encodeCreateCall(tr Trace) (*pbcodec.Call, error) {
	action := tr.Action
	if action == nil {
		return nil, NewEncoding("trace action", "")
	}
	if action.From == nil {
		return nil, NewEncoding("trace from", "")
	}
	if action.Gas == nil {
		return nil, NewEncoding("trace gas", "")
	}
	result := tr.Result
	resultAddr := zeroAddress
	gasUsed := "0x0"
	if result != nil {
		if result.Address != nil {
			resultAddr = *result.Address
		}
		if result.GasUsed != nil {
			gasUsed = *result.GasUsed
		}
	}

	caller, err := decodeHex("trace from", *action.From)
	if err != nil {
		return nil, err
	}
	address, err := decodeHex("trace address", resultAddr)
	if err != nil {
		return nil, err
	}
	value, err := decodeOptionalBigInt("trace value", action.Value)
	if err != nil {
		return nil, err
	}
	gasLimit, err := decodeQty("trace gas", *action.Gas)
	if err != nil {
		return nil, err
	}
	gasConsumed, err := decodeQty("trace gas used", gasUsed)
	if err != nil {
		return nil, err
	}

	failed, reverted, reason := traceFailure(tr)
	return &pbcodec.Call{
		CallType:       pbcodec.CallType_CREATE,
		Caller:         caller,
		Address:        address,
		Value:          value,
		GasLimit:       gasLimit,
		GasConsumed:    gasConsumed,
		ReturnData:     []byte{},
		Input:          []byte{},
		StatusFailed:   failed,
		StatusReverted: reverted,
		FailureReason:  reason,
	}, nil
}

func encodeRegularCall(tr Trace) (*pbcodec.Call, error) {
	action := tr.Action
	if action == nil {
		return nil, NewEncoding("trace action", "")
	}
	if action.From == nil {
		return nil, NewEncoding("trace from", "")
	}
	if action.To == nil {
		return nil, NewEncoding("trace to", "")
	}
	if action.Gas == nil {
		return nil, NewEncoding("trace gas", "")
	}
	if action.Input == nil {
		return nil, NewEncoding("trace input", "")
	}
	result := tr.Result
	output := "0x"
	gasUsed := "0x0"
	if result != nil {
		if result.Output != nil {
			output = *result.Output
		}
		if result.GasUsed != nil {
			gasUsed = *result.GasUsed
		}
	}

	callType := pbcodec.CallType_UNSPECIFIED
	if action.Type != nil {
		switch *action.Type {
		case CallTypeCall:
			callType = pbcodec.CallType_CALL
		case CallTypeCallCode:
			callType = pbcodec.CallType_CALLCODE
		case CallTypeDelegateCall:
			callType = pbcodec.CallType_DELEGATE
		case CallTypeStaticCall:
			callType = pbcodec.CallType_STATIC
		}
	}

	caller, err := decodeHex("trace from", *action.From)
	if err != nil {
		return nil, err
	}
	address, err := decodeHex("trace to", *action.To)
	if err != nil {
		return nil, err
	}
	value, err := decodeOptionalBigInt("trace value", action.Value)
	if err != nil {
		return nil, err
	}
	gasLimit, err := decodeQty("trace gas", *action.Gas)
	if err != nil {
		return nil, err
	}
	gasConsumed, err := decodeQty("trace gas used", gasUsed)
	if err != nil {
		return nil, err
	}
	returnData, err := decodeHex("trace output", output)
	if err != nil {
		return nil, err
	}
	input, err := decodeHex("trace input", *action.Input)
	if err != nil {
		return nil, err
	}

	failed, reverted, reason := traceFailure(tr)
	return &pbcodec.Call{
		CallType:       callType,
		Caller:         caller,
		Address:        address,
		Value:          value,
		GasLimit:       gasLimit,
		GasConsumed:    gasConsumed,
		ReturnData:     returnData,
		Input:          input,
		StatusFailed:   failed,
		StatusReverted: reverted,
		FailureReason:  reason,
	}, nil
}

// txTraceStatus derives a transaction's status from its root call (index 0).
//
// Note this reads calls[0].StateReverted, not calls[0].StatusReverted.
// EncodeCall never sets StateReverted, so the REVERTED branch is practically
// unreachable; downstream consumers have come to rely on failed-with-revert
// transactions reporting FAILED, so keep it that way.
func txTraceStatus(calls []*pbcodec.Call) pbcodec.TransactionTraceStatus {
	if len(calls) == 0 {
		return pbcodec.TransactionTraceStatus_UNKNOWN
	}
	root := calls[0]
	switch {
	case root.StatusFailed && root.StateReverted:
		return pbcodec.TransactionTraceStatus_REVERTED
	case root.StatusFailed:
		return pbcodec.TransactionTraceStatus_FAILED
	default:
		return pbcodec.TransactionTraceStatus_SUCCEEDED
	}
}

// EncodeUndoHeader builds the synthetic block emitted with an UNDO step:
// only number and parent_hash are populated, the minimum a consumer needs to
// roll back its view.
func EncodeUndoHeader(number uint64, parentHash string) (*pbcodec.Block, error) {
	parentHashBytes, err := decodeHex("parent hash", parentHash)
	if err != nil {
		return nil, err
	}
	return &pbcodec.Block{
		Header: &pbcodec.BlockHeader{
			Number:     number,
			ParentHash: parentHashBytes,
		},
	}, nil
}

// EncodeBlock translates an internal Block into the Firehose protobuf
// Block, grouping logs and traces by transaction_index into their owning
// transaction.
func EncodeBlock(b *Block) (*pbcodec.Block, error) {
	logsByTx := make(map[uint32][]Log, len(b.Logs))
	for _, l := range b.Logs {
		logsByTx[l.TransactionIndex] = append(logsByTx[l.TransactionIndex], l)
	}
	tracesByTx := make(map[uint32][]Trace, len(b.Traces))
	for _, tr := range b.Traces {
		tracesByTx[tr.TransactionIndex] = append(tracesByTx[tr.TransactionIndex], tr)
	}

	header, err := EncodeHeader(b.Header)
	if err != nil {
		return nil, err
	}

	txTraces := make([]*pbcodec.TransactionTrace, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		txTrace, err := EncodeTransaction(tx)
		if err != nil {
			return nil, err
		}

		logs := make([]*pbcodec.Log, 0)
		for _, l := range logsByTx[tx.TransactionIndex] {
			encoded, err := EncodeLog(l)
			if err != nil {
				return nil, err
			}
			logs = append(logs, encoded)
		}

		calls := make([]*pbcodec.Call, 0)
		for _, tr := range tracesByTx[tx.TransactionIndex] {
			encoded, err := EncodeCall(tr)
			if err != nil {
				return nil, err
			}
			if encoded != nil {
				calls = append(calls, encoded)
			}
		}

		cumulativeGasUsed, err := decodeQty("tx cumulative gas used", tx.CumulativeGasUsed)
		if err != nil {
			return nil, err
		}

		txTrace.Receipt = &pbcodec.TransactionReceipt{
			CumulativeGasUsed: cumulativeGasUsed,
			LogsBloom:         make([]byte, 256),
			Logs:              logs,
		}
		txTrace.Calls = calls
		txTrace.Status = txTraceStatus(calls)

		txTraces = append(txTraces, txTrace)
	}

	hash, err := decodeHex("hash", b.Header.Hash)
	if err != nil {
		return nil, err
	}

	return &pbcodec.Block{
		Ver:               2,
		Hash:              hash,
		Number:            b.Header.Number,
		Size:              b.Header.Size,
		Header:            header,
		TransactionTraces: txTraces,
	}, nil
}
