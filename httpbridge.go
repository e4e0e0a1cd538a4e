package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

const (
	wsWriteTimeout = 5 * time.Second
	shutdownGrace  = 3 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local clients only; the listener binds to loopback by default.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// httpBridge serves status over HTTP and change events over a WebSocket.
type httpBridge struct {
	addr      string
	eventName string
	src       StatusSource
	log       zerolog.Logger
	e         *echo.Echo

	// done is closed when Serve stops; hijacked WebSocket connections are
	// not tracked by the HTTP server and watch it themselves.
	done     chan struct{}
	stopOnce sync.Once
}

func newHTTPBridge(addr, eventName string, src StatusSource, log zerolog.Logger) *httpBridge {
	b := &httpBridge{addr: addr, eventName: eventName, src: src, log: log, done: make(chan struct{})}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/status", b.handleStatus)
	e.GET("/constants", b.handleConstants)
	e.GET("/events", b.handleEvents)
	b.e = e
	return b
}

func (b *httpBridge) Name() string { return bridgeHTTP }

func (b *httpBridge) stop() {
	b.stopOnce.Do(func() { close(b.done) })
}

func (b *httpBridge) Serve(ctx context.Context) error {
	defer b.stop()

	errCh := make(chan error, 1)
	go func() {
		b.log.Info().Str("addr", b.addr).Msg("listening")
		errCh <- b.e.Start(b.addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http %s: %w", b.addr, err)
	case <-ctx.Done():
	}

	b.stop()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := b.e.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (b *httpBridge) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, b.src.CurrentStatus(c.Request().Context()))
}

func (b *httpBridge) handleConstants(c echo.Context) error {
	return c.JSON(http.StatusOK, Constants(b.eventName))
}

// handleEvents upgrades to a WebSocket and writes one Event per change until
// the client closes the connection or the bridge stops.
func (b *httpBridge) handleEvents(c echo.Context) error {
	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		b.log.Warn().Err(err).Msg("ws upgrade")
		return nil
	}
	defer conn.Close()

	events := make(chan Status, eventBuffer)
	h := b.src.Subscribe(func(st Status) {
		select {
		case events <- st:
		default:
			b.log.Warn().Msg("websocket client too slow, dropping event")
		}
	})
	defer b.src.Unsubscribe(h)

	// Reads only serve to notice the close frame.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-gone:
			return nil
		case <-b.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return nil
		case st := <-events:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(Event{Event: b.eventName, Status: st}); err != nil {
				b.log.Debug().Err(err).Msg("ws write")
				return nil
			}
		}
	}
}
