package ipc

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// WatchFunc streams daemon events to one watcher until ctx ends or send fails.
type WatchFunc func(ctx context.Context, send func(any) error) error

type service struct {
	ctx     context.Context
	handler Handler
	watchFn WatchFunc
}

func (s *service) handle(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req Request
	if err := fromStruct(in, &req); err != nil {
		return toStruct(Response{OK: false, Error: fmt.Sprintf("decode request: %v", err)})
	}
	return toStruct(s.handler.Handle(ctx, req))
}

func (s *service) watch(_ *structpb.Struct, stream grpc.ServerStream) error {
	if s.watchFn == nil {
		return status.Error(codes.Unimplemented, "watch is not available")
	}

	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()
	go func() {
		select {
		case <-s.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.watchFn(ctx, func(v any) error {
		msg, err := toStruct(v)
		if err != nil {
			return err
		}
		return stream.SendMsg(msg)
	})
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// Serve runs the control service on listener until context cancellation.
func Serve(ctx context.Context, listener net.Listener, handler Handler, watch ...WatchFunc) error {
	svc := &service{ctx: ctx, handler: handler}
	if len(watch) > 0 {
		svc.watchFn = watch[0]
	}

	server := grpc.NewServer()
	server.RegisterService(&serviceDesc, svc)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		server.GracefulStop()
	}()

	if err := server.Serve(listener); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		server.Stop()
		return fmt.Errorf("serve IPC: %w", err)
	}
	<-stopped
	return nil
}
