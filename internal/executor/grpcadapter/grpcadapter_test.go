package grpcadapter

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/codeready-toolchain/execflow/internal/executor"
)

// dialFake starts an in-memory server that implements just enough of the
// unary path to exercise Adapter
// without any generated service stub, mirroring how Adapter itself avoids
// generated stubs on the client side.
func dialFake(t *testing.T, handler func(method string, req *structpb.Struct) (*structpb.Struct, error)) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(srv any, stream grpc.ServerStream) error {
		method, ok := grpc.MethodFromServerStream(stream)
		require.True(t, ok)
		req := &structpb.Struct{}
		require.NoError(t, stream.RecvMsg(req))
		resp, err := handler(method, req)
		if err != nil {
			return err
		}
		return stream.SendMsg(resp)
	}))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestSpawnRoundTripsThroughStruct(t *testing.T) {
	conn := dialFake(t, func(method string, req *structpb.Struct) (*structpb.Struct, error) {
		require.Equal(t, methodSpawn, method)
		require.Equal(t, "do the thing", req.Fields["prompt"].GetStringValue())
		return structpb.NewStruct(map[string]any{
			"stdout":    "hello\n",
			"exit_code": float64(0),
		})
	})

	a := New(conn)
	child, err := a.Spawn(context.Background(), "/work", "do the thing", executor.Env{"FOO": "bar"})
	require.NoError(t, err)

	code, err := child.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, code)
}

func TestAvailabilityReflectsRemoteFailure(t *testing.T) {
	conn := dialFake(t, func(method string, req *structpb.Struct) (*structpb.Struct, error) {
		return nil, grpc.ErrServerStopped
	})
	a := New(conn)
	require.Equal(t, executor.NotFound, a.Availability(context.Background()))
}
