package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

// SidecarCompleteMethod is the unary method served by the agent sidecar. Both
// request and response are google.protobuf.Struct messages.
const SidecarCompleteMethod = "/fitmind.agent.v1.CompletionService/Complete"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

const (
	sidecarConnectTimeout   = 5 * time.Second
	sidecarKeepaliveTime    = 2 * time.Minute
	sidecarKeepaliveTimeout = 10 * time.Second
)

// Sidecar forwards completions to an agent process over gRPC.
type Sidecar struct {
	conn   *grpc.ClientConn
	addr   string
	logger *slog.Logger
}

// NewSidecar connects to the sidecar at addr and waits until it is ready.
func NewSidecar(addr string, logger *slog.Logger) (*Sidecar, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		return nil, fmt.Errorf("sidecar address is required")
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    sidecarKeepaliveTime,
			Timeout: sidecarKeepaliveTimeout,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create sidecar client for %s: %w", addr, err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), sidecarConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("sidecar at %s not ready: %w", addr, err)
	}

	logger.Info("Connected to completion sidecar", "address", addr)
	return &Sidecar{conn: conn, addr: addr, logger: logger}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Complete implements Client.
func (s *Sidecar) Complete(ctx context.Context, req Request) (*Response, error) {
	errb := oops.In("completion").With("provider", "grpc", "address", s.addr)

	in, err := sidecarRequest(req)
	if err != nil {
		return nil, errb.Wrapf(fmt.Errorf("%w: %w", ErrUnavailable, err), "encode sidecar request")
	}

	out := &structpb.Struct{}
	if err := s.conn.Invoke(ctx, SidecarCompleteMethod, in, out, grpc.WaitForReady(true)); err != nil {
		return nil, errb.Wrapf(fmt.Errorf("%w: %w", ErrUnavailable, err), "invoke sidecar")
	}

	resp, err := sidecarResponse(out)
	if err != nil {
		return nil, errb.Wrapf(fmt.Errorf("%w: %w", ErrUnavailable, err), "decode sidecar response")
	}
	return resp, nil
}

// Close closes the gRPC connection.
func (s *Sidecar) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close sidecar connection: %w", err)
	}
	return nil
}

func sidecarRequest(req Request) (*structpb.Struct, error) {
	history := make([]any, 0, len(req.History))
	for _, t := range req.History {
		history = append(history, map[string]any{"role": t.Role, "content": t.Content})
	}
	return structpb.NewStruct(map[string]any{
		"system_prompt": req.SystemPrompt,
		"message":       req.Message,
		"history":       history,
		"structured":    req.Structured,
	})
}

func sidecarResponse(out *structpb.Struct) (*Response, error) {
	fields := out.GetFields()
	msg := fields["message"].GetStringValue()
	if msg == "" {
		return nil, ErrEmptyResponse
	}

	resp := &Response{Content: msg}
	if v, ok := fields["offer"]; ok {
		offer := v.GetBoolValue()
		resp.Offer = &offer
	}
	return resp, nil
}
