package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"

	pbfirehose "github.com/streamingfast/pbgo/sf/firehose/v2"

	"github.com/smartcontractkit/chainlink-firehose/core/chain"
	"github.com/smartcontractkit/chainlink-firehose/core/logger"
	"github.com/smartcontractkit/chainlink-firehose/core/stream"
)

type fakeBlocksServer struct {
	ctx  context.Context
	sent []*pbfirehose.Response
}

func (f *fakeBlocksServer) Send(r *pbfirehose.Response) error {
	f.sent = append(f.sent, r)
	return nil
}
func (f *fakeBlocksServer) SetHeader(metadata.MD) error  { return nil }
func (f *fakeBlocksServer) SendHeader(metadata.MD) error { return nil }
func (f *fakeBlocksServer) SetTrailer(metadata.MD)       {}
func (f *fakeBlocksServer) Context() context.Context     { return f.ctx }
func (f *fakeBlocksServer) SendMsg(m interface{}) error  { return nil }
func (f *fakeBlocksServer) RecvMsg(m interface{}) error  { return nil }

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

func hashFor(height uint64) string {
	const hexDigits = "0123456789abcdef"
	if height == 0 {
		return "0x00"
	}
	return "0x" + string(hexDigits[height%16])
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

func TestServer_Blocks_StreamsResponses(t *testing.T) {
	portal := &fakePortal{finalizedHeight: 3, blocks: []chain.Block{
		makeBlock(0, "0x00"), makeBlock(1, hashFor(0)), makeBlock(2, hashFor(1)), makeBlock(3, hashFor(2)),
	}}
	engine := stream.New(portal, nil, logger.Default)
	srv := New(engine, logger.Default)

	fake := &fakeBlocksServer{ctx: context.Background()}
	err := srv.Blocks(&pbfirehose.Request{StartBlockNum: 0, StopBlockNum: 2}, fake)
	require.NoError(t, err)
	require.Len(t, fake.sent, 3)
	assert.Equal(t, pbfirehose.ForkStep_STEP_NEW, fake.sent[0].Step)
}

func TestServer_Blocks_UnsupportedMapsToUnimplemented(t *testing.T) {
	portal := &fakePortal{finalizedHeight: 3}
	engine := stream.New(portal, nil, logger.Default)
	srv := New(engine, logger.Default)

	fake := &fakeBlocksServer{ctx: context.Background()}
	err := srv.Blocks(&pbfirehose.Request{FinalBlocksOnly: true}, fake)
	require.Error(t, err)
	assert.Equal(t, codes.Unimplemented, grpcstatus.Code(err))
}

func TestServer_Block_RejectsTransforms(t *testing.T) {
	portal := &fakePortal{finalizedHeight: 3}
	engine := stream.New(portal, nil, logger.Default)
	srv := New(engine, logger.Default)

	_, err := srv.Block(context.Background(), &pbfirehose.SingleBlockRequest{
		Reference: &pbfirehose.SingleBlockRequest_BlockNumber_{
			BlockNumber: &pbfirehose.SingleBlockRequest_BlockNumber{Num: 1},
		},
		Transforms: []*anypb.Any{{}},
	})
	require.Error(t, err)
	assert.Equal(t, codes.Unimplemented, grpcstatus.Code(err))
}

func TestServer_Block_ResolvesBlockNumber(t *testing.T) {
	portal := &fakePortal{finalizedHeight: 3, blocks: []chain.Block{makeBlock(2, hashFor(1))}}
	engine := stream.New(portal, nil, logger.Default)
	srv := New(engine, logger.Default)

	resp, err := srv.Block(context.Background(), &pbfirehose.SingleBlockRequest{
		Reference: &pbfirehose.SingleBlockRequest_BlockNumber_{
			BlockNumber: &pbfirehose.SingleBlockRequest_BlockNumber{Num: 2},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Block)
}

func TestToGRPCError_MapsKinds(t *testing.T) {
	assert.Equal(t, codes.NotFound, grpcstatus.Code(toGRPCError(chain.NewNotFound("block 1"))))
	assert.Equal(t, codes.InvalidArgument, grpcstatus.Code(toGRPCError(chain.NewInvalidInput("cursor", "x"))))
	assert.Equal(t, codes.Unimplemented, grpcstatus.Code(toGRPCError(chain.NewUnsupported("transforms"))))
	assert.Nil(t, toGRPCError(nil))
}
