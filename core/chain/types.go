// Package chain holds the internal block model shared by both source
// adapters, plus the cursor codec, filter compiler, and block encoder that
// operate on it. Fields stay as raw JSON-RPC hex strings, so the encoder
// (encoder.go) is the single place that performs hex/quantity decoding and
// the parity-repair rule.
package chain

// HashAndHeight identifies one block unambiguously.
type HashAndHeight struct {
	Height uint64
	Hash   string // hex, "0x"-prefixed, as received from the source
}

// TraceType is the trace kind reported by the node's tracer.
type TraceType int

const (
	TraceCall TraceType = iota
	TraceCreate
	TraceSuicide
	TraceReward
)

// CallType further qualifies a TraceCall.
type CallType int

const (
	CallTypeUnknown CallType = iota
	CallTypeCall
	CallTypeCallCode
	CallTypeDelegateCall
	CallTypeStaticCall
)

// BlockHeader is the internal, not-yet-decoded header shape.
type BlockHeader struct {
	Hash             string
	ParentHash       string
	UncleHash        string
	Coinbase         string
	StateRoot        string
	TransactionsRoot string
	ReceiptsRoot     string
	LogsBloom        string
	Difficulty       string
	TotalDifficulty  string
	Number           uint64
	GasLimit         string
	GasUsed          string
	Timestamp        uint64
	ExtraData        string
	MixHash          string
	Nonce            string
	BaseFeePerGas    *string // absent pre-London
	Size             uint64
}

// TraceAction is the "action" sub-object of a call/create trace.
type TraceAction struct {
	From  *string
	To    *string // only read for Call traces
	Gas   *string
	Value *string
	Input *string
	Type  *CallType // only meaningful on Call traces
}

// TraceResult is the "result" sub-object of a call/create trace.
type TraceResult struct {
	GasUsed *string
	Address *string // only meaningful on Create traces
	Output  *string
}

// Trace is one entry of a transaction's call tree.
type Trace struct {
	TransactionIndex uint32
	Type             TraceType
	Action           *TraceAction
	Result           *TraceResult
	Error            *string
	RevertReason     *string
}

// Transaction is the internal, not-yet-decoded transaction shape.
type Transaction struct {
	Hash                 string
	TransactionIndex     uint32
	From                 string
	To                   *string // nil means contract creation
	Nonce                uint64
	GasPrice             string
	Gas                  string
	GasUsed              string
	CumulativeGasUsed    string
	Value                string
	Input                string
	V                    string
	R                    string
	S                    string
	Type                 uint32
	MaxFeePerGas         *string
	MaxPriorityFeePerGas *string
}

// Log is the internal, not-yet-decoded log shape.
type Log struct {
	TransactionIndex uint32
	LogIndex         uint32
	Address          string
	Data             string
	Topics           []string
}

// Block is the internal shape both adapters produce, and the sole input to
// the block encoder (component 5).
type Block struct {
	Header       BlockHeader
	Transactions []Transaction
	Logs         []Log
	Traces       []Trace
}

// HashAndHeight derives the (hash, height) identity of a Block, used by the
// streaming engine to update StreamState after every emission.
func (b *Block) HashAndHeight() HashAndHeight {
	return HashAndHeight{Height: b.Header.Number, Hash: b.Header.Hash}
}

// LogRequest is a compiled log filter, passed to the adapters. An empty
// Address or Topic0 means unrestricted along that axis.
type LogRequest struct {
	Address           []string
	Topic0            []string
	Transaction       bool
	TransactionTraces bool
	TransactionLogs   bool
}

// TraceRequest is a compiled call filter.
type TraceRequest struct {
	Address         []string
	Sighash         []string
	Transaction     bool
	TransactionLogs bool
	Parents         bool
}

// TxRequest requests transaction fields be populated; empty means
// unrestricted. Single-block lookups always pass one empty entry so the
// result carries every field.
type TxRequest struct{}

// DataRequest is the query both adapters' finalized-block methods accept.
type DataRequest struct {
	From         uint64
	To           *uint64 // nil = open-ended
	Logs         []LogRequest
	Transactions []TxRequest
	Traces       []TraceRequest
}

// HotUpdate is the incremental, reorg-aware record the RPC adapter's hot
// tailer produces. BaseHead is the deepest block shared with what was last
// emitted; an update with no Blocks signals that only the base/finalized
// heads changed.
type HotUpdate struct {
	BaseHead      HashAndHeight
	FinalizedHead HashAndHeight
	Blocks        []Block
}
