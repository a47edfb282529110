// Package server wires the streaming engine to the Firehose v2 gRPC
// surface: the two RPCs on the Stream service, Blocks and Block.
package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	pbcodec "github.com/streamingfast/firehose-ethereum/types/pb/sf/ethereum/type/v2"
	pbfirehose "github.com/streamingfast/pbgo/sf/firehose/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/smartcontractkit/chainlink-firehose/core/chain"
	"github.com/smartcontractkit/chainlink-firehose/core/logger"
	"github.com/smartcontractkit/chainlink-firehose/core/stream"
	"github.com/smartcontractkit/chainlink-firehose/core/web"
)

const blockTypeURL = "type.googleapis.com/sf.ethereum.type.v2.Block"

// Server implements pbfirehose.StreamServer over a streaming engine.
type Server struct {
	pbfirehose.UnimplementedStreamServer

	Engine *stream.Engine
	Log    logger.Logger
	// Registry, if set, is updated with this subscription's progress so
	// the admin surface's /v2/subscriptions resource can report it.
	Registry *web.SubscriptionRegistry
}

// New builds a Server around engine.
func New(engine *stream.Engine, log logger.Logger) *Server {
	return &Server{Engine: engine, Log: log}
}

// Blocks implements the streaming RPC.
func (s *Server) Blocks(req *pbfirehose.Request, srv pbfirehose.Stream_BlocksServer) error {
	ctx := srv.Context()

	engineReq := stream.Request{
		StartBlockNum:   req.GetStartBlockNum(),
		StopBlockNum:    req.GetStopBlockNum(),
		Cursor:          req.GetCursor(),
		FinalBlocksOnly: req.GetFinalBlocksOnly(),
		Transforms:      req.GetTransforms(),
	}

	var update func(block uint64, step string)
	if s.Registry != nil {
		var unregister func()
		update, unregister = s.Registry.Register(uuid.NewString())
		defer unregister()
	}

	err := s.Engine.Blocks(ctx, engineReq, func(r stream.Response) error {
		resp, err := toProtoResponse(r)
		if err != nil {
			return err
		}
		if update != nil {
			update(r.Block.GetHeader().GetNumber(), r.Step.String())
		}
		return srv.Send(resp)
	})
	return toGRPCError(err)
}

// Block implements the single-block RPC. transforms must be empty; the
// reference is resolved to a block height and delegated to the engine's
// SingleBlock.
func (s *Server) Block(ctx context.Context, req *pbfirehose.SingleBlockRequest) (*pbfirehose.SingleBlockResponse, error) {
	if len(req.GetTransforms()) > 0 {
		return nil, toGRPCError(chain.NewUnsupported("transforms on single block"))
	}

	height, err := singleBlockHeight(req)
	if err != nil {
		return nil, toGRPCError(err)
	}

	block, err := s.Engine.SingleBlock(ctx, height)
	if err != nil {
		return nil, toGRPCError(err)
	}

	value, err := encodeAny(block)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return &pbfirehose.SingleBlockResponse{Block: value}, nil
}

func singleBlockHeight(req *pbfirehose.SingleBlockRequest) (uint64, error) {
	switch ref := req.GetReference().(type) {
	case *pbfirehose.SingleBlockRequest_BlockNumber_:
		return ref.BlockNumber.GetNum(), nil
	case *pbfirehose.SingleBlockRequest_BlockHashAndNumber_:
		return ref.BlockHashAndNumber.GetNum(), nil
	case *pbfirehose.SingleBlockRequest_Cursor_:
		c, err := chain.Parse(ref.Cursor.GetCursor())
		if err != nil {
			return 0, err
		}
		return c.Last.Height, nil
	default:
		return 0, chain.NewInvalidInput("reference", "unset")
	}
}

func toProtoResponse(r stream.Response) (*pbfirehose.Response, error) {
	value, err := encodeAny(r.Block)
	if err != nil {
		return nil, err
	}
	return &pbfirehose.Response{
		Block:  value,
		Step:   toProtoStep(r.Step),
		Cursor: r.Cursor,
	}, nil
}

func toProtoStep(s stream.Step) pbfirehose.ForkStep {
	switch s {
	case stream.StepUndo:
		return pbfirehose.ForkStep_STEP_UNDO
	default:
		return pbfirehose.ForkStep_STEP_NEW
	}
}

func encodeAny(block *pbcodec.Block) (*anypb.Any, error) {
	value, err := anypb.New(block)
	if err != nil {
		return nil, chain.WrapUpstream(err, "block encode")
	}
	value.TypeUrl = blockTypeURL
	return value, nil
}

func toGRPCError(err error) error {
	if err == nil {
		return nil
	}
	var kerr *chain.KindedError
	if errors.As(err, &kerr) {
		switch kerr.Kind {
		case chain.KindUnsupported:
			return status.Error(codes.Unimplemented, kerr.Error())
		case chain.KindInvalidInput:
			return status.Error(codes.InvalidArgument, kerr.Error())
		case chain.KindNotFound:
			return status.Error(codes.NotFound, kerr.Error())
		case chain.KindEncoding:
			return status.Error(codes.Internal, kerr.Error())
		case chain.KindUpstream:
			return status.Error(codes.Unavailable, kerr.Error())
		}
	}
	return status.Error(codes.Internal, fmt.Sprintf("internal error: %v", err))
}
