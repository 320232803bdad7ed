package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// errUnavailable reports that nothing accepted the connection.
var errUnavailable = errors.New("control socket unavailable")

// dial opens a client connection to the daemon socket and waits until it is usable.
func dial(ctx context.Context, path string) (*grpc.ClientConn, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	conn, err := grpc.NewClient(
		"unix://"+path,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial control socket: %w", err)
	}

	conn.Connect()
	if err := waitForReady(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// Send performs one request/response roundtrip with a deadline.
func Send(ctx context.Context, path string, req Request, timeout time.Duration) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dial(ctx, path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	in, err := toStruct(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, handleMethod, in, out); err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := fromStruct(out, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// Watch streams daemon events as JSON lines to fn until ctx ends or the daemon stops.
func Watch(ctx context.Context, path string, connectTimeout time.Duration, fn func([]byte) error) error {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	conn, err := dial(dialCtx, path)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	stream, err := conn.NewStream(ctx, &serviceDesc.Streams[0], watchMethod)
	if err != nil {
		return fmt.Errorf("open watch stream: %w", err)
	}
	if err := stream.SendMsg(&structpb.Struct{}); err != nil {
		return fmt.Errorf("open watch stream: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("open watch stream: %w", err)
	}

	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive event: %w", err)
		}
		line, err := json.Marshal(msg.AsMap())
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		if err := fn(line); err != nil {
			return err
		}
	}
}

// Probe checks whether a responsive owner is currently listening on path.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := Send(ctx, path, Request{Command: CommandStatus}, timeout)
	if err == nil {
		return true, nil
	}
	if isSocketMissing(err) || isConnectionRefused(err) {
		return false, nil
	}
	return false, fmt.Errorf("probe socket: %w", err)
}

// isSocketMissing reports absent-socket failures.
func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist)
}

// isConnectionRefused reports no-listener failures.
func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, errUnavailable)
}

// IsUnavailable reports whether err means no daemon is listening on the socket.
func IsUnavailable(err error) bool {
	return isSocketMissing(err) || isConnectionRefused(err)
}
