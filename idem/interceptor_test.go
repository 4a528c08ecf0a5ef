package idem

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/ceyewan/onetake/testkit"
)

var testInfo = &grpc.UnaryServerInfo{FullMethod: "/orders.OrderService/Create"}

func incomingContext(key string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-idempotency-key", key))
}

func TestUnaryInterceptorReplaysResponse(t *testing.T) {
	coord, _ := newRedisCoordinator(t, &Config{})
	interceptor := coord.UnaryServerInterceptor()

	var calls atomic.Int32
	handler := func(ctx context.Context, req any) (any, error) {
		calls.Add(1)
		return wrapperspb.String("created"), nil
	}

	ctx := incomingContext(testkit.NewID())
	first, err := interceptor(ctx, wrapperspb.String("req"), testInfo, handler)
	require.NoError(t, err)
	second, err := interceptor(ctx, wrapperspb.String("req"), testInfo, handler)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	replayed, ok := second.(*wrapperspb.StringValue)
	require.True(t, ok, "replayed message keeps its concrete type")
	assert.Equal(t, "created", replayed.GetValue())
	assert.True(t, proto.Equal(first.(proto.Message), replayed))
}

func TestUnaryInterceptorWithoutKey(t *testing.T) {
	coord, _ := newRedisCoordinator(t, &Config{})
	interceptor := coord.UnaryServerInterceptor()

	var calls atomic.Int32
	handler := func(ctx context.Context, req any) (any, error) {
		calls.Add(1)
		return wrapperspb.Int64(1), nil
	}

	_, err := interceptor(context.Background(), nil, testInfo, handler)
	require.NoError(t, err)
	_, err = interceptor(context.Background(), nil, testInfo, handler)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestUnaryInterceptorRequireKey(t *testing.T) {
	coord, _ := newRedisCoordinator(t, &Config{})
	interceptor := coord.UnaryServerInterceptor(WithRequireMetadataKey())

	_, err := interceptor(context.Background(), nil, testInfo, func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler must not run")
		return nil, nil
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestUnaryInterceptorCustomMetadataKey(t *testing.T) {
	coord, _ := newRedisCoordinator(t, &Config{})
	interceptor := coord.UnaryServerInterceptor(WithMetadataKey("request-id"))

	var calls atomic.Int32
	handler := func(ctx context.Context, req any) (any, error) {
		calls.Add(1)
		return wrapperspb.Bool(true), nil
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("request-id", testkit.NewID()))
	_, err := interceptor(ctx, nil, testInfo, handler)
	require.NoError(t, err)
	_, err = interceptor(ctx, nil, testInfo, handler)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnaryInterceptorKeepsHandlerError(t *testing.T) {
	coord, _ := newRedisCoordinator(t, &Config{})
	interceptor := coord.UnaryServerInterceptor()

	var calls atomic.Int32
	handler := func(ctx context.Context, req any) (any, error) {
		calls.Add(1)
		return nil, status.Error(codes.NotFound, "order not found")
	}

	ctx := incomingContext(testkit.NewID())
	_, err := interceptor(ctx, nil, testInfo, handler)
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = interceptor(ctx, nil, testInfo, handler)
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Equal(t, int32(2), calls.Load(), "errors are not cached")
}

func TestUnaryInterceptorNonProtoResponse(t *testing.T) {
	coord, mr := newRedisCoordinator(t, &Config{})
	interceptor := coord.UnaryServerInterceptor()
	key := testkit.NewID()

	resp, err := interceptor(incomingContext(key), nil, testInfo, func(ctx context.Context, req any) (any, error) {
		return "plain", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "plain", resp)
	assert.False(t, mr.Exists("idempotency:"+key))
}

func TestUnaryInterceptorRejectInProgress(t *testing.T) {
	coord, mr := newRedisCoordinator(t, &Config{LockMode: LockModeReject})
	interceptor := coord.UnaryServerInterceptor()
	key := testkit.NewID()
	require.NoError(t, mr.Set("lock:"+key, "in-flight"))

	_, err := interceptor(incomingContext(key), nil, testInfo, func(ctx context.Context, req any) (any, error) {
		return wrapperspb.String("x"), nil
	})
	assert.Equal(t, codes.Aborted, status.Code(err))
}
