package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danmuck/btlink/internal/client"
	"github.com/danmuck/btlink/internal/config"
	"github.com/danmuck/btlink/internal/dispatch"
	"github.com/danmuck/btlink/internal/observability"
	"github.com/danmuck/btlink/internal/protocol/command"
	"github.com/rs/zerolog/log"
)

var errNoReply = errors.New("no matching reply from daemon")

// session is one engine plus a buffered feed of everything it dispatched.
type session struct {
	engine *client.Engine
	inbox  chan dispatch.Message
}

func openSession(ctx context.Context, cfg config.Config) (*session, error) {
	e, err := client.New(cfg.ClientConfig())
	if err != nil {
		return nil, err
	}
	s := &session{engine: e, inbox: make(chan dispatch.Message, 64)}
	e.RegisterHandler(func(_ context.Context, msg dispatch.Message) {
		select {
		case s.inbox <- msg:
		default:
			log.Warn().Msgf("btctl: inbox full, dropping %T", msg)
		}
	})
	if err := e.Connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.engine.Disconnect(ctx); err != nil {
		log.Debug().Err(err).Msg("btctl: disconnect")
	}
}

// request sends cmd and waits for the first message match accepts.
func (s *session) request(ctx context.Context, cmd command.Command, timeout time.Duration, match func(dispatch.Message) bool) (dispatch.Message, error) {
	if err := s.engine.Send(cmd); err != nil {
		return nil, err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case msg := <-s.inbox:
			if dd, ok := msg.(dispatch.DaemonDisconnected); ok {
				return nil, fmt.Errorf("daemon closed the connection: %w", dd.Err)
			}
			if match(msg) {
				return msg, nil
			}
			log.Debug().Msgf("btctl: skipping %s while waiting for %s", formatMessage(msg), cmd)
		case <-timer.C:
			return nil, fmt.Errorf("%w after %s: %s", errNoReply, timeout, cmd)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// serveMetrics starts the metrics listener when addr is set. The returned
// func shuts it down.
func serveMetrics(addr string, healthy func() bool) func() {
	if addr == "" {
		return func() {}
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           observability.Router(healthy),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("btctl: metrics listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("btctl: metrics server failed")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
