package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// eventBuffer bounds how far a slow client may fall behind before events
// are dropped for it.
const eventBuffer = 64

// socketBridge serves JSON requests on a unix socket. "status" and
// "constants" get a single reply; "subscribe" streams events until the
// client hangs up.
type socketBridge struct {
	path      string
	eventName string
	src       StatusSource
	log       zerolog.Logger
}

func newSocketBridge(path, eventName string, src StatusSource, log zerolog.Logger) *socketBridge {
	return &socketBridge{path: path, eventName: eventName, src: src, log: log}
}

func (s *socketBridge) Name() string { return bridgeSocket }

func (s *socketBridge) Serve(ctx context.Context) error {
	os.Remove(s.path) // remove stale socket
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.path, err)
	}
	os.Chmod(s.path, 0700)
	defer os.Remove(s.path)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	s.log.Info().Str("path", s.path).Msg("listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				// Listener closed by shutdown.
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *socketBridge) handleRequest(ctx context.Context, req IPCRequest) IPCResponse {
	switch req.Command {
	case "status":
		st := s.src.CurrentStatus(ctx)
		return IPCResponse{Status: &st}
	case "constants":
		return IPCResponse{Constants: Constants(s.eventName)}
	default:
		return IPCResponse{Error: fmt.Sprintf("unknown command: %q", req.Command)}
	}
}

func (s *socketBridge) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	var req IPCRequest
	if err := dec.Decode(&req); err != nil {
		enc.Encode(IPCResponse{Error: "invalid request: " + err.Error()})
		return
	}

	if req.Command != "subscribe" {
		enc.Encode(s.handleRequest(ctx, req))
		return
	}
	s.stream(ctx, conn, enc)
}

// stream writes the current status and then every change until the client
// disconnects or ctx ends.
func (s *socketBridge) stream(ctx context.Context, conn net.Conn, enc *json.Encoder) {
	events := make(chan Status, eventBuffer)
	h := s.src.Subscribe(func(st Status) {
		select {
		case events <- st:
		default:
			s.log.Warn().Msg("subscriber too slow, dropping event")
		}
	})
	defer s.src.Unsubscribe(h)
	s.log.Debug().Str("handle", string(h)).Msg("client subscribed")

	// The client sends nothing after subscribing; EOF means it is gone.
	gone := make(chan struct{})
	go func() {
		io.Copy(io.Discard, conn)
		close(gone)
	}()

	st := s.src.CurrentStatus(ctx)
	if err := enc.Encode(IPCResponse{Status: &st}); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-gone:
			s.log.Debug().Str("handle", string(h)).Msg("client went away")
			return
		case st := <-events:
			if err := enc.Encode(IPCResponse{Event: s.eventName, Status: &st}); err != nil {
				return
			}
		}
	}
}
