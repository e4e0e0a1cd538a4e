package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/rs/zerolog"
)

const (
	dbusName   = "io.github.milad.Headphoned"
	dbusPath   = dbus.ObjectPath("/io/github/milad/Headphoned")
	dbusIface  = "io.github.milad.Headphoned1"
	dbusSignal = "AudioDeviceChanged"

	dbusQueryTimeout = 5 * time.Second
)

// emitter is a listener-counted event source. It holds a reporter
// subscription only while at least one listener is registered.
type emitter struct {
	src       StatusSource
	eventName string
	emit      func(Event)
	log       zerolog.Logger

	mu        sync.Mutex
	listeners int
	handle    Handle
	active    bool
}

func newEmitter(src StatusSource, eventName string, emit func(Event), log zerolog.Logger) *emitter {
	return &emitter{src: src, eventName: eventName, emit: emit, log: log}
}

func (e *emitter) addListener(eventName string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if eventName != e.eventName {
		e.log.Warn().Str("event", eventName).Msg("listener added for unknown event")
	}
	e.listeners++
	if e.active {
		return
	}
	e.handle = e.src.Subscribe(func(st Status) {
		e.emit(Event{Event: e.eventName, Status: st})
	})
	e.active = true
	e.log.Debug().Msg("first listener, subscribed to reporter")
}

func (e *emitter) removeListeners(count int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.listeners -= count
	if e.listeners > 0 {
		return
	}
	e.listeners = 0
	e.release()
}

func (e *emitter) listenerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listeners
}

func (e *emitter) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = 0
	e.release()
}

// release must be called with e.mu held.
func (e *emitter) release() {
	if !e.active {
		return
	}
	e.src.Unsubscribe(e.handle)
	e.active = false
	e.handle = ""
	e.log.Debug().Msg("no listeners left, unsubscribed from reporter")
}

// dbusObject is the exported D-Bus interface.
type dbusObject struct {
	src       StatusSource
	em        *emitter
	eventName string
}

func (o *dbusObject) IsAudioDeviceConnected() (string, bool, bool, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbusQueryTimeout)
	defer cancel()
	st := o.src.CurrentStatus(ctx)
	return string(st.State), st.AudioJack, st.Bluetooth, nil
}

func (o *dbusObject) GetConstants() (map[string]string, *dbus.Error) {
	return Constants(o.eventName), nil
}

func (o *dbusObject) AddListener(eventName string) *dbus.Error {
	o.em.addListener(eventName)
	return nil
}

func (o *dbusObject) RemoveListeners(count int32) *dbus.Error {
	if count < 0 {
		return dbus.MakeFailedError(fmt.Errorf("negative listener count %d", count))
	}
	o.em.removeListeners(int(count))
	return nil
}

// dbusBridge publishes the reporter on the session bus and emits
// AudioDeviceChanged signals while clients listen.
type dbusBridge struct {
	eventName string
	src       StatusSource
	log       zerolog.Logger
}

func newDBusBridge(eventName string, src StatusSource, log zerolog.Logger) *dbusBridge {
	return &dbusBridge{eventName: eventName, src: src, log: log}
}

func (b *dbusBridge) Name() string { return bridgeDBus }

func (b *dbusBridge) Serve(ctx context.Context) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("connect to session bus: %w", err)
	}
	defer conn.Close()

	em := newEmitter(b.src, b.eventName, func(ev Event) {
		err := conn.Emit(dbusPath, dbusIface+"."+dbusSignal,
			string(ev.Status.State), ev.Status.AudioJack, ev.Status.Bluetooth)
		if err != nil {
			b.log.Warn().Err(err).Msg("emit signal")
		}
	}, b.log)
	defer em.close()

	obj := &dbusObject{src: b.src, em: em, eventName: b.eventName}
	if err := conn.Export(obj, dbusPath, dbusIface); err != nil {
		return fmt.Errorf("export object: %w", err)
	}
	node := &introspect.Node{
		Name: string(dbusPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    dbusIface,
				Methods: introspect.Methods(obj),
				Signals: []introspect.Signal{{
					Name: dbusSignal,
					Args: []introspect.Arg{
						{Name: "state", Type: "s"},
						{Name: "audioJack", Type: "b"},
						{Name: "bluetooth", Type: "b"},
					},
				}},
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), dbusPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}

	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request name %s: %w", dbusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", dbusName)
	}
	b.log.Info().Str("name", dbusName).Str("path", string(dbusPath)).Msg("exported on session bus")

	<-ctx.Done()
	return nil
}
