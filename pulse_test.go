package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSinkInfoWiredHeadphone(t *testing.T) {
	tests := []struct {
		name string
		sink sinkInfo
		want bool
	}{
		{
			name: "analog headphones plugged",
			sink: sinkInfo{Name: "alsa_output.pci-0000_00_1f.3.analog-stereo", Bus: "pci",
				ActivePort: "analog-output-headphones", PortAvailable: portAvailableYes},
			want: true,
		},
		{
			name: "headphone port with unknown availability",
			sink: sinkInfo{Bus: "pci", ActivePort: "[Out] Headphones", PortAvailable: portAvailableUnknown},
			want: true,
		},
		{
			name: "headphone port unplugged",
			sink: sinkInfo{Bus: "pci", ActivePort: "analog-output-headphones", PortAvailable: portAvailableNo},
			want: false,
		},
		{
			name: "speakers",
			sink: sinkInfo{Bus: "pci", ActivePort: "analog-output-speaker", PortAvailable: portAvailableYes},
			want: false,
		},
		{
			name: "usb headset",
			sink: sinkInfo{Name: "alsa_output.usb-headset", Bus: "usb", FormFactor: "headset", ActivePort: "analog-output"},
			want: true,
		},
		{
			name: "usb speakers",
			sink: sinkInfo{Bus: "usb", FormFactor: "speaker", ActivePort: "analog-output"},
			want: false,
		},
		{
			name: "bluetooth headset is not wired",
			sink: sinkInfo{Name: "bluez_output.AA_BB_CC_DD_EE_FF.1", Bus: "bluetooth", FormFactor: "headset",
				ActivePort: "headset-output"},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sink.wiredHeadphone())
		})
	}
}
