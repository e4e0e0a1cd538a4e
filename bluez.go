package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	busName       = "org.bluez"
	adapterIface  = "org.bluez.Adapter1"
	deviceIface   = "org.bluez.Device1"
	propsIface    = "org.freedesktop.DBus.Properties"
	propsSignal   = "org.freedesktop.DBus.Properties.PropertiesChanged"
	objMgrIface   = "org.freedesktop.DBus.ObjectManager"
	ifaceAdded    = "org.freedesktop.DBus.ObjectManager.InterfacesAdded"
	ifaceRemoved  = "org.freedesktop.DBus.ObjectManager.InterfacesRemoved"
	bluezRootPath = dbus.ObjectPath("/")
)

// Profile UUIDs of devices that play audio to the user.
var audioSinkUUIDs = map[string]bool{
	"0000110b-0000-1000-8000-00805f9b34fb": true, // A2DP sink
	"0000110d-0000-1000-8000-00805f9b34fb": true, // advanced audio
	"0000111e-0000-1000-8000-00805f9b34fb": true, // handsfree
	"00001108-0000-1000-8000-00805f9b34fb": true, // headset
	"00001131-0000-1000-8000-00805f9b34fb": true, // headset HS
	"0000184e-0000-1000-8000-00805f9b34fb": true, // LE audio stream control
}

func adapterObjectPath(adapter string) dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + adapter)
}

// deviceObjectPath converts a MAC address like "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func deviceObjectPath(adapter, addr string) dbus.ObjectPath {
	escaped := strings.ReplaceAll(addr, ":", "_")
	return dbus.ObjectPath(string(adapterObjectPath(adapter)) + "/dev_" + escaped)
}

// macFromPath extracts a MAC address from a BlueZ device object path.
func macFromPath(adapter string, path dbus.ObjectPath) string {
	s := string(path)
	prefix := string(adapterObjectPath(adapter)) + "/dev_"
	if !strings.HasPrefix(s, prefix) {
		return ""
	}
	rest := s[len(prefix):]
	// Child objects such as .../dev_XX/sep1 belong to the device too.
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return strings.ReplaceAll(rest, "_", ":")
}

// devicePath returns the MAC address when path is a device object itself on
// the adapter, not one of its children.
func devicePath(adapter string, path dbus.ObjectPath) (string, bool) {
	mac := macFromPath(adapter, path)
	if mac == "" || deviceObjectPath(adapter, mac) != path {
		return "", false
	}
	return mac, true
}

// isAudioDevice decides from Device1 properties whether the device is a
// headphone-like audio output.
func isAudioDevice(props map[string]dbus.Variant) bool {
	if v, ok := props["UUIDs"]; ok {
		if uuids, ok := v.Value().([]string); ok {
			for _, u := range uuids {
				if audioSinkUUIDs[strings.ToLower(u)] {
					return true
				}
			}
		}
	}
	if v, ok := props["Icon"]; ok {
		if icon, ok := v.Value().(string); ok {
			switch icon {
			case "audio-headphones", "audio-headset", "audio-card":
				return true
			}
		}
	}
	return false
}

// bluez wraps a system D-Bus connection for BlueZ operations.
type bluez struct {
	conn    *dbus.Conn
	adapter string
}

func newBluez(adapter string) (*bluez, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	// Quick check that BlueZ is on the bus.
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	found := false
	for _, n := range names {
		if n == busName {
			found = true
			break
		}
	}
	if !found {
		conn.Close()
		return nil, fmt.Errorf("org.bluez not found on system bus, is bluetooth.service running?")
	}
	return &bluez{conn: conn, adapter: adapter}, nil
}

func (b *bluez) close() {
	b.conn.Close()
}

// --- property helpers ---

func (b *bluez) getProp(ctx context.Context, path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	obj := b.conn.Object(busName, path)
	var v dbus.Variant
	err := obj.CallWithContext(ctx, propsIface+".Get", 0, iface, prop).Store(&v)
	return v, err
}

func (b *bluez) getBool(ctx context.Context, path dbus.ObjectPath, iface, prop string) (bool, error) {
	v, err := b.getProp(ctx, path, iface, prop)
	if err != nil {
		return false, err
	}
	val, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("property %s is not bool", prop)
	}
	return val, nil
}

// --- adapter ---

func (b *bluez) adapterPowered(ctx context.Context) (bool, error) {
	return b.getBool(ctx, adapterObjectPath(b.adapter), adapterIface, "Powered")
}

// --- devices ---

// connectedAudioDevices returns the MAC addresses of connected audio devices
// on the adapter.
func (b *bluez) connectedAudioDevices(ctx context.Context) ([]string, error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	obj := b.conn.Object(busName, bluezRootPath)
	if err := obj.CallWithContext(ctx, objMgrIface+".GetManagedObjects", 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("get managed objects: %w", err)
	}

	var macs []string
	for path, ifaces := range objects {
		props, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		mac, ok := devicePath(b.adapter, path)
		if !ok {
			continue
		}
		connected := false
		if v, ok := props["Connected"]; ok {
			connected, _ = v.Value().(bool)
		}
		if connected && isAudioDevice(props) {
			macs = append(macs, mac)
		}
	}
	return macs, nil
}

// bluetoothAttached reports whether a Bluetooth headphone is connected.
// A powered-off adapter counts as nothing attached.
func (b *bluez) bluetoothAttached(ctx context.Context) (bool, error) {
	powered, err := b.adapterPowered(ctx)
	if err != nil {
		return false, fmt.Errorf("adapter %s: %w", b.adapter, err)
	}
	if !powered {
		return false, nil
	}
	macs, err := b.connectedAudioDevices(ctx)
	if err != nil {
		return false, err
	}
	return len(macs) > 0, nil
}

// --- signal subscription ---

func (b *bluez) subscribeChanges() (chan *dbus.Signal, error) {
	rules := []string{
		"type='signal',interface='" + propsIface + "',member='PropertiesChanged',path_namespace='/org/bluez'",
		"type='signal',sender='" + busName + "',interface='" + objMgrIface + "',member='InterfacesAdded'",
		"type='signal',sender='" + busName + "',interface='" + objMgrIface + "',member='InterfacesRemoved'",
	}
	for _, rule := range rules {
		if err := b.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
			return nil, fmt.Errorf("add match: %w", err)
		}
	}
	ch := make(chan *dbus.Signal, 16)
	b.conn.Signal(ch)
	return ch, nil
}

func (b *bluez) unsubscribeChanges(ch chan *dbus.Signal) {
	b.conn.RemoveSignal(ch)
}

// changes forwards relevant BlueZ signals as change triggers until ctx is
// done. Bursts collapse into one pending trigger.
func (b *bluez) changes(ctx context.Context) (<-chan struct{}, error) {
	sigCh, err := b.subscribeChanges()
	if err != nil {
		return nil, err
	}
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer b.unsubscribeChanges(sigCh)
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-sigCh:
				if !ok {
					return
				}
				if !relevantSignal(b.adapter, sig) {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}

// relevantSignal reports whether sig can change the Bluetooth headphone
// status on the adapter.
func relevantSignal(adapter string, sig *dbus.Signal) bool {
	switch sig.Name {
	case propsSignal:
		// Body: [interface_name string, changed_props map[string]Variant, invalidated []string]
		if len(sig.Body) < 2 {
			return false
		}
		iface, ok := sig.Body[0].(string)
		if !ok {
			return false
		}
		changed, ok := sig.Body[1].(map[string]dbus.Variant)
		if !ok {
			return false
		}
		switch iface {
		case adapterIface:
			_, ok := changed["Powered"]
			return ok && sig.Path == adapterObjectPath(adapter)
		case deviceIface:
			if _, ok := devicePath(adapter, sig.Path); !ok {
				return false
			}
			_, conn := changed["Connected"]
			_, uuids := changed["UUIDs"]
			return conn || uuids
		}
		return false
	case ifaceAdded, ifaceRemoved:
		if len(sig.Body) < 1 {
			return false
		}
		path, ok := sig.Body[0].(dbus.ObjectPath)
		return ok && macFromPath(adapter, path) != ""
	}
	return false
}
