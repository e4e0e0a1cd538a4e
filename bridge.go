package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

const (
	bridgeSocket = "socket"
	bridgeDBus   = "dbus"
	bridgeHTTP   = "http"
)

// Bridge exposes a reporter to clients over one transport.
type Bridge interface {
	Name() string
	// Serve blocks until ctx is done or the transport fails.
	Serve(ctx context.Context) error
}

// StatusSource is the part of the reporter a bridge needs.
type StatusSource interface {
	CurrentStatus(ctx context.Context) Status
	Subscribe(fn func(Status)) Handle
	Unsubscribe(h Handle)
}

// newBridges builds the bridges named in cfg.
func newBridges(cfg Config, src StatusSource, log zerolog.Logger) ([]Bridge, error) {
	var bridges []Bridge
	for _, name := range cfg.Bridges {
		blog := log.With().Str("bridge", name).Logger()
		switch name {
		case bridgeSocket:
			bridges = append(bridges, newSocketBridge(cfg.Socket, cfg.EventName, src, blog))
		case bridgeDBus:
			bridges = append(bridges, newDBusBridge(cfg.EventName, src, blog))
		case bridgeHTTP:
			bridges = append(bridges, newHTTPBridge(cfg.HTTPAddr, cfg.EventName, src, blog))
		default:
			return nil, fmt.Errorf("unknown bridge %q", name)
		}
	}
	return bridges, nil
}
