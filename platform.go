package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// bluetoothSource reports Bluetooth headphones and signals when they may
// have changed.
type bluetoothSource interface {
	bluetoothAttached(ctx context.Context) (bool, error)
	// changes delivers a value whenever the Bluetooth state may differ. The
	// channel is closed once ctx is done.
	changes(ctx context.Context) (<-chan struct{}, error)
	close()
}

// jackSource reports wired or USB headphones. It has no change signal and
// is polled.
type jackSource interface {
	audioJackAttached(ctx context.Context) (bool, error)
	close()
}

// linuxPlatform combines BlueZ (Bluetooth headphones) and PulseAudio (wired
// jack and USB headsets). Either source may be missing.
type linuxPlatform struct {
	bt   bluetoothSource
	jack jackSource
	poll time.Duration
	log  zerolog.Logger
}

func newLinuxPlatform(cfg Config, log zerolog.Logger) (*linuxPlatform, error) {
	p := &linuxPlatform{poll: cfg.PollInterval, log: log}

	bz, err := newBluez(cfg.Adapter)
	if err != nil {
		log.Warn().Err(err).Msg("bluetooth detection disabled")
	} else {
		p.bt = bz
	}

	pa, err := newPulseAudio(appName)
	if err != nil {
		log.Warn().Err(err).Msg("wired headphone detection disabled")
	} else {
		p.jack = pa
	}

	if p.bt == nil && p.jack == nil {
		return nil, errors.New("no audio platform available")
	}
	return p, nil
}

func (p *linuxPlatform) close() {
	if p.bt != nil {
		p.bt.close()
	}
	if p.jack != nil {
		p.jack.close()
	}
}

// Query reads both sources. It fails only when no source answers; a failing
// source counts as nothing attached.
func (p *linuxPlatform) Query(ctx context.Context) (Status, error) {
	var (
		jack, bt bool
		errs     []error
		answered int
	)
	if p.jack != nil {
		v, err := p.jack.audioJackAttached(ctx)
		if err != nil {
			errs = append(errs, err)
		} else {
			jack = v
			answered++
		}
	}
	if p.bt != nil {
		v, err := p.bt.bluetoothAttached(ctx)
		if err != nil {
			errs = append(errs, err)
		} else {
			bt = v
			answered++
		}
	}
	if answered == 0 {
		if len(errs) == 0 {
			errs = append(errs, errors.New("no source configured"))
		}
		return UnknownStatus(), fmt.Errorf("query headphones: %w", errors.Join(errs...))
	}
	for _, err := range errs {
		p.log.Debug().Err(err).Msg("partial headphone query")
	}
	return NewStatus(jack, bt), nil
}

// Watch re-queries on every Bluetooth change and every poll tick. Queries
// that fail are logged and not passed to notify.
func (p *linuxPlatform) Watch(ctx context.Context, notify func(Status)) error {
	var btCh <-chan struct{}
	if p.bt != nil {
		ch, err := p.bt.changes(ctx)
		if err != nil {
			p.log.Warn().Err(err).Msg("bluetooth signals unavailable, polling only")
		} else {
			btCh = ch
		}
	}

	var tick <-chan time.Time
	if p.jack != nil && p.poll > 0 {
		t := time.NewTicker(p.poll)
		defer t.Stop()
		tick = t.C
	}

	refresh := func(reason string) {
		st, err := p.Query(ctx)
		if err != nil {
			p.log.Warn().Err(err).Str("trigger", reason).Msg("headphone query failed")
			return
		}
		notify(st)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-btCh:
			if !ok {
				btCh = nil
				continue
			}
			p.log.Debug().Msg("bluetooth change")
			refresh("bluetooth")
		case <-tick:
			refresh("poll")
		}
	}
}
