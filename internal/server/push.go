// Package server hosts the feed's two subscriber-facing surfaces: the
// raw-TCP push listener (newline-delimited JSON, no handshake) and the
// pull/book-snapshot HTTP API.
package server

import (
	"context"
	"errors"
	"net"

	"github.com/google/uuid"

	"github.com/quantfeed/mbo-gateway/internal/broadcast"
	"github.com/quantfeed/mbo-gateway/pkg/observability"
)

// LagRecorder receives a callback each time a push subscriber falls
// behind and messages are dropped for it.
type LagRecorder interface {
	RecordBroadcastLag(ctx context.Context, dropped uint64)
}

// PushServer accepts raw TCP connections and streams every broadcast
// message to each one, newline-delimited, with no handshake.
type PushServer struct {
	Broadcaster *broadcast.Broadcaster
	Logger      *observability.Logger
	Metrics     LagRecorder // optional
}

// NewPushServer returns a PushServer wired to bc.
func NewPushServer(bc *broadcast.Broadcaster, logger *observability.Logger) *PushServer {
	return &PushServer{Broadcaster: bc, Logger: logger}
}

// Serve accepts connections on ln until ctx is canceled or ln is closed.
// Each connection gets its own subscription and write loop; an accept
// error is logged and the loop continues rather than terminating the
// whole server.
func (s *PushServer) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.Logger.Warn(ctx, "push listener accept failed", map[string]interface{}{"error": err.Error()})
			continue
		}
		connID := uuid.NewString()
		go s.handleConn(ctx, conn, connID)
	}
}

func (s *PushServer) handleConn(ctx context.Context, conn net.Conn, connID string) {
	defer conn.Close()

	sub := s.Broadcaster.Subscribe()
	defer s.Broadcaster.Unsubscribe(sub)

	s.Logger.Info(ctx, "push subscriber connected", map[string]interface{}{
		"connection_id": connID,
		"remote_addr":   conn.RemoteAddr().String(),
	})

	for {
		result := sub.Recv()
		switch result.Kind {
		case broadcast.KindMessage:
			if _, err := conn.Write(result.Message); err != nil {
				s.Logger.Info(ctx, "push subscriber write failed, closing", map[string]interface{}{
					"connection_id": connID,
					"error":         err.Error(),
				})
				return
			}
		case broadcast.KindLagged:
			s.Logger.Warn(ctx, "push subscriber lagging", map[string]interface{}{
				"connection_id": connID,
				"dropped":       result.Lagged,
			})
			if s.Metrics != nil {
				s.Metrics.RecordBroadcastLag(ctx, result.Lagged)
			}
		case broadcast.KindClosed:
			s.Logger.Info(ctx, "push subscriber closed: broadcaster shut down", map[string]interface{}{
				"connection_id": connID,
			})
			return
		}
	}
}
