package chain

import (
	"encoding/hex"
	"sort"

	transformpb "github.com/streamingfast/firehose-ethereum/types/pb/sf/ethereum/transform/v1"
	"google.golang.org/protobuf/types/known/anypb"
)

// CompileFilters decodes each transform (a protobuf-encoded CombinedFilter
// wrapped in an Any), merges LogFilters and CallFilters that share an
// identical (sorted) topic-0 / sighash set, and returns the two deduplicated
// lists passed to the adapters.
//
// The merge is a linear scan against the accumulator built so far rather
// than a map keyed by the sorted set; a subscription carries a handful of
// filters at most.
func CompileFilters(transforms []*anypb.Any) (logs []LogRequest, traces []TraceRequest, err error) {
	for _, transform := range transforms {
		filter := &transformpb.CombinedFilter{}
		if err := transform.UnmarshalTo(filter); err != nil {
			return nil, nil, NewInvalidInput("transform", transform.GetTypeUrl())
		}

		if filter.GetSendAllBlockHeaders() {
			return nil, nil, NewUnsupported("send_all_block_headers")
		}

		for _, lf := range filter.GetLogFilters() {
			req := logRequestFromFilter(lf)
			logs = mergeLogRequest(logs, req)
		}

		for _, cf := range filter.GetCallFilters() {
			req := traceRequestFromFilter(cf)
			traces = mergeTraceRequest(traces, req)
		}
	}
	return logs, traces, nil
}

func logRequestFromFilter(lf *transformpb.LogFilter) LogRequest {
	req := LogRequest{
		Transaction:       true,
		TransactionTraces: true,
		TransactionLogs:   true,
	}
	for _, a := range lf.GetAddresses() {
		req.Address = append(req.Address, hexEncode(a))
	}
	for _, t := range lf.GetEventSignatures() {
		req.Topic0 = append(req.Topic0, hexEncode(t))
	}
	sort.Strings(req.Topic0)
	return req
}

func traceRequestFromFilter(cf *transformpb.CallToFilter) TraceRequest {
	req := TraceRequest{
		Transaction:     true,
		TransactionLogs: true,
		Parents:         true,
	}
	for _, a := range cf.GetAddresses() {
		req.Address = append(req.Address, hexEncode(a))
	}
	for _, s := range cf.GetSignatures() {
		req.Sighash = append(req.Sighash, hexEncode(s))
	}
	sort.Strings(req.Sighash)
	return req
}

// mergeLogRequest merges new into the accumulated logs slice, unioning
// addresses into the first entry whose (sorted) topic-0 set is element-wise
// equal.
func mergeLogRequest(logs []LogRequest, newReq LogRequest) []LogRequest {
	for i := range logs {
		if topicsEqual(logs[i].Topic0, newReq.Topic0) {
			logs[i].Address = unionStrings(logs[i].Address, newReq.Address)
			return logs
		}
	}
	return append(logs, newReq)
}

func mergeTraceRequest(traces []TraceRequest, newReq TraceRequest) []TraceRequest {
	for i := range traces {
		if topicsEqual(traces[i].Sighash, newReq.Sighash) {
			traces[i].Address = unionStrings(traces[i].Address, newReq.Address)
			return traces
		}
	}
	return append(traces, newReq)
}

func topicsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func unionStrings(existing []string, toAdd []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		seen[e] = struct{}{}
	}
	for _, a := range toAdd {
		if _, ok := seen[a]; !ok {
			existing = append(existing, a)
			seen[a] = struct{}{}
		}
	}
	return existing
}

func hexEncode(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
