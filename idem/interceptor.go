package idem

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/ceyewan/onetake/clog"
	"github.com/ceyewan/onetake/xerrors"
)

// UnaryServerInterceptor 创建 gRPC 一元服务端拦截器
// 为每个 gRPC 调用提供幂等性保护
//
// 使用示例:
//
//	s := grpc.NewServer(
//	    grpc.UnaryInterceptor(idem.UnaryServerInterceptor()),
//	)
func (c *coordinator) UnaryServerInterceptor(opts ...InterceptorOption) grpc.UnaryServerInterceptor {
	opt := interceptorOptions{
		metadataKey: "x-idempotency-key",
	}
	for _, o := range opts {
		o(&opt)
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		key := metadataValue(ctx, opt.metadataKey)
		if key == "" {
			if opt.requireKey {
				return nil, status.Error(codes.InvalidArgument, ErrMissingKey.Error())
			}
			return handler(ctx, req)
		}

		c.logger.DebugContext(ctx, "gRPC call with idem key",
			clog.String("key", key),
			clog.String("method", info.FullMethod))

		var (
			executed   bool
			handlerRes any
			handlerErr error
		)
		res, err := c.Perform(ctx, key, func(ctx context.Context) (WorkResult, error) {
			executed = true
			handlerRes, handlerErr = handler(ctx, req)
			if handlerErr != nil {
				return nil, handlerErr
			}
			msg, ok := handlerRes.(proto.Message)
			if !ok {
				c.logger.WarnContext(ctx, "skip caching non-proto gRPC response", clog.String("key", key))
				return protoResult{}, nil
			}
			return protoResult{msg: msg}, nil
		})

		if executed {
			// 保留 handler 原始的返回值与状态码
			return handlerRes, handlerErr
		}
		if err != nil {
			return nil, grpcStatusOf(err)
		}

		msg, err := decodeCachedGRPCResponse(res.Data)
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to decode cached gRPC response", clog.String("key", key), clog.Error(err))
			return nil, status.Error(codes.Internal, err.Error())
		}
		return msg, nil
	}
}

func metadataValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func grpcStatusOf(err error) error {
	switch {
	case xerrors.Is(err, ErrAlreadyInProgress):
		return status.Error(codes.Aborted, err.Error())
	case xerrors.Is(err, ErrWaitTimeout), xerrors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case xerrors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case xerrors.Is(err, xerrors.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// protoResult 以 protojson(Any) 序列化的 gRPC 响应
type protoResult struct {
	msg proto.Message
}

func (r protoResult) IsPersisted() bool {
	return r.msg != nil
}

func (r protoResult) Serialize() (string, error) {
	anyMsg, err := anypb.New(r.msg)
	if err != nil {
		return "", err
	}
	b, err := protojson.Marshal(anyMsg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeCachedGRPCResponse(data string) (proto.Message, error) {
	var anyMsg anypb.Any
	if err := protojson.Unmarshal([]byte(data), &anyMsg); err != nil {
		return nil, err
	}
	return anypb.UnmarshalNew(&anyMsg, proto.UnmarshalOptions{})
}
