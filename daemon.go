package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
)

type daemon struct {
	reporter *Reporter
	bridges  []Bridge
	log      zerolog.Logger
}

func newDaemon(cfg Config, p Platform, log zerolog.Logger) (*daemon, error) {
	r := NewReporter(p, WithLogger(log.With().Str("component", "reporter").Logger()))
	bridges, err := newBridges(cfg, r, log)
	if err != nil {
		r.Close()
		return nil, err
	}
	return &daemon{reporter: r, bridges: bridges, log: log}, nil
}

// run starts watching and serves every bridge until ctx ends. The first
// bridge failure stops the rest.
func (d *daemon) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.reporter.Start(ctx)
	defer d.reporter.Close()

	st := d.reporter.Last()
	d.log.Info().
		Str("state", string(st.State)).
		Bool("audio_jack", st.AudioJack).
		Bool("bluetooth", st.Bluetooth).
		Msg("initial headphone status")

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for _, b := range d.bridges {
		b := b
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.Serve(ctx); err != nil {
				errOnce.Do(func() { firstErr = fmt.Errorf("%s bridge: %w", b.Name(), err) })
				cancel()
			}
		}()
	}
	wg.Wait()
	return firstErr
}

func runDaemon(cfg Config, log zerolog.Logger) error {
	plat, err := newLinuxPlatform(cfg, log.With().Str("component", "platform").Logger())
	var p Platform
	if err != nil {
		// Keep serving; every query reports unknown.
		log.Error().Err(err).Msg("headphone detection unavailable")
	} else {
		defer plat.close()
		p = plat
	}

	d, err := newDaemon(cfg, p, log)
	if err != nil {
		return err
	}

	// Graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
	}()

	return d.run(ctx)
}
