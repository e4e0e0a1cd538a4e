package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource stands in for BlueZ and PulseAudio.
type fakeSource struct {
	mu       sync.Mutex
	attached bool
	err      error
	calls    int
	trigger  chan struct{}
}

func newFakeSource(attached bool, err error) *fakeSource {
	return &fakeSource{attached: attached, err: err, trigger: make(chan struct{})}
}

func (f *fakeSource) query() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.attached, f.err
}

func (f *fakeSource) set(attached bool, err error) {
	f.mu.Lock()
	f.attached, f.err = attached, err
	f.mu.Unlock()
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSource) bluetoothAttached(ctx context.Context) (bool, error) { return f.query() }
func (f *fakeSource) audioJackAttached(ctx context.Context) (bool, error) { return f.query() }

func (f *fakeSource) changes(ctx context.Context) (<-chan struct{}, error) {
	return f.trigger, nil
}

func (f *fakeSource) close() {}

func TestLinuxPlatform_Query(t *testing.T) {
	down := errors.New("service down")

	tests := []struct {
		name    string
		jack    *fakeSource
		bt      *fakeSource
		want    Status
		wantErr bool
	}{
		{name: "both answer", jack: newFakeSource(true, nil), bt: newFakeSource(true, nil), want: both},
		{name: "nothing attached", jack: newFakeSource(false, nil), bt: newFakeSource(false, nil), want: disconnected},
		{name: "pulse fails", jack: newFakeSource(true, down), bt: newFakeSource(true, nil), want: wireless},
		{name: "bluez fails", jack: newFakeSource(true, nil), bt: newFakeSource(true, down), want: wired},
		{name: "both fail", jack: newFakeSource(false, down), bt: newFakeSource(false, down), want: UnknownStatus(), wantErr: true},
		{name: "only pulse", jack: newFakeSource(true, nil), want: wired},
		{name: "only bluez", bt: newFakeSource(true, nil), want: wireless},
		{name: "only bluez failing", bt: newFakeSource(false, down), want: UnknownStatus(), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &linuxPlatform{log: zerolog.Nop()}
			if tt.jack != nil {
				p.jack = tt.jack
			}
			if tt.bt != nil {
				p.bt = tt.bt
			}

			st, err := p.Query(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, down)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, st)
		})
	}
}

func TestLinuxPlatform_WatchSkipsFailedQueries(t *testing.T) {
	down := errors.New("service down")
	jack := newFakeSource(false, down)
	bt := newFakeSource(false, down)
	p := &linuxPlatform{jack: jack, bt: bt, log: zerolog.Nop()}

	notified := make(chan Status, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx, func(st Status) { notified <- st }) }()

	bt.trigger <- struct{}{}
	require.Eventually(t, func() bool { return bt.callCount() >= 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, notified)

	bt.set(true, nil)
	bt.trigger <- struct{}{}
	select {
	case st := <-notified:
		assert.Equal(t, wireless, st)
	case <-time.After(2 * time.Second):
		t.Fatal("no status after recovery")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestLinuxPlatform_WatchPollsJack(t *testing.T) {
	jack := newFakeSource(true, nil)
	p := &linuxPlatform{jack: jack, poll: 5 * time.Millisecond, log: zerolog.Nop()}

	notified := make(chan Status, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Watch(ctx, func(st Status) {
		select {
		case notified <- st:
		default:
		}
	})

	select {
	case st := <-notified:
		assert.Equal(t, wired, st)
	case <-time.After(2 * time.Second):
		t.Fatal("poll never fired")
	}
}
