package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

// PulseAudio port availability values.
const (
	portAvailableUnknown = 0
	portAvailableNo      = 1
	portAvailableYes     = 2
)

// sinkInfo is the part of a PulseAudio sink that decides whether it is a
// wired headphone output.
type sinkInfo struct {
	Name       string
	Bus        string // device.bus property: pci, usb, bluetooth...
	FormFactor string // device.form_factor property
	ActivePort string
	// PortAvailable is the availability of the active port.
	PortAvailable uint32
}

// wiredHeadphone reports whether s is a wired jack or USB headset output
// with something plugged in.
func (s sinkInfo) wiredHeadphone() bool {
	if s.Bus == "bluetooth" || strings.HasPrefix(s.Name, "bluez_") {
		return false
	}
	switch s.FormFactor {
	case "headphone", "headset":
		if s.Bus == "usb" {
			return true
		}
	}
	port := strings.ToLower(s.ActivePort)
	if !strings.Contains(port, "headphone") && !strings.Contains(port, "headset") {
		return false
	}
	return s.PortAvailable != portAvailableNo
}

// pulseAudio reads sink routing from the PulseAudio (or pipewire-pulse)
// server.
type pulseAudio struct {
	mu     sync.Mutex
	client *pulse.Client
	name   string
}

func newPulseAudio(appName string) (*pulseAudio, error) {
	p := &pulseAudio{name: appName}
	if _, err := p.conn(); err != nil {
		return nil, err
	}
	return p, nil
}

// conn returns the client, reconnecting if the server went away.
func (p *pulseAudio) conn() (*pulse.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	c, err := pulse.NewClient(pulse.ClientApplicationName(p.name))
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	p.client = c
	return c, nil
}

func (p *pulseAudio) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
}

func (p *pulseAudio) close() {
	p.reset()
}

func (p *pulseAudio) sinks(ctx context.Context) ([]sinkInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := p.conn()
	if err != nil {
		return nil, err
	}
	var reply proto.GetSinkInfoListReply
	if err := c.RawRequest(&proto.GetSinkInfoList{}, &reply); err != nil {
		p.reset()
		return nil, fmt.Errorf("pulse list sinks: %w", err)
	}

	sinks := make([]sinkInfo, 0, len(reply))
	for _, s := range reply {
		info := sinkInfo{
			Name:          s.SinkName,
			Bus:           propString(s.Properties, "device.bus"),
			FormFactor:    propString(s.Properties, "device.form_factor"),
			ActivePort:    s.ActivePortName,
			PortAvailable: portAvailableUnknown,
		}
		for _, port := range s.Ports {
			if port.Name == s.ActivePortName {
				info.PortAvailable = port.Available
				break
			}
		}
		sinks = append(sinks, info)
	}
	return sinks, nil
}

// audioJackAttached reports whether any sink routes to wired headphones.
func (p *pulseAudio) audioJackAttached(ctx context.Context) (bool, error) {
	sinks, err := p.sinks(ctx)
	if err != nil {
		return false, err
	}
	for _, s := range sinks {
		if s.wiredHeadphone() {
			return true, nil
		}
	}
	return false, nil
}

func propString(props proto.PropList, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	return v.String()
}
