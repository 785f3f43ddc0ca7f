// SPDX-License-Identifier: MIT
package eeg

import "strings"

// Device is a known EEG headset family with its channel layout.
type Device struct {
	Manufacturer string
	Model        string
	layouts      [][]string // candidate layouts, smallest first
}

var (
	unicorn = Device{
		Manufacturer: "g.tec medical engineering GmbH",
		Model:        "Unicorn Hybrid Black",
		layouts: [][]string{{
			"Fz", "C3", "Cz", "C4", "Pz", "PO7", "Oz", "PO8",
			"ACC_X", "ACC_Y", "ACC_Z", "GYR_X", "GYR_Y", "GYR_Z",
			"Battery", "Counter", "Validation",
		}},
	}
	openBCI = Device{
		Manufacturer: "OpenBCI",
		Model:        "Cyton Board",
		layouts: [][]string{
			{"Fp1", "Fp2", "C3", "C4", "P7", "P8", "O1", "O2"},
			{
				"Fp1", "Fp2", "F7", "F3", "F4", "F8", "C3", "Cz",
				"C4", "T7", "T8", "P7", "P3", "Pz", "P4", "P8",
			},
		},
	}
	emotiv = Device{
		Manufacturer: "Emotiv Inc.",
		Model:        "EPOC+",
		layouts: [][]string{{
			"AF3", "F7", "F3", "FC5", "T7", "P7", "O1", "O2",
			"P8", "T8", "FC6", "F4", "F8", "AF4",
		}},
	}
	neuroSky = Device{Manufacturer: "NeuroSky", Model: "MindWave"}
	muse     = Device{Manufacturer: "InteraXon", Model: "Muse Headband"}
	generic  = Device{Manufacturer: "Unknown Manufacturer", Model: "EEG Device"}
)

// KnownDevices lists the headset families DetectDevice recognises.
func KnownDevices() []Device {
	return []Device{unicorn, openBCI, emotiv, neuroSky, muse}
}

// MaxChannels is the size of the largest known layout, 0 if none.
func (d Device) MaxChannels() int {
	n := 0
	for _, l := range d.layouts {
		n = max(n, len(l))
	}
	return n
}

// DetectDevice guesses the headset family from a stream name or source id.
func DetectDevice(name, sourceID string) Device {
	n := strings.ToLower(name)
	id := strings.ToLower(sourceID)
	has := func(s string) bool { return strings.Contains(n, s) || strings.Contains(id, s) }

	switch {
	case has("unicorn"):
		return unicorn
	case has("openbci"):
		return openBCI
	case has("emotiv"):
		return emotiv
	case has("neurosky"):
		return neuroSky
	case has("muse"):
		return muse
	default:
		return generic
	}
}

// Labels returns channel labels for n channels using the device layout.
// Devices without a layout get Ch1..ChN.
func (d Device) Labels(n int) []string {
	var layout []string
	for _, l := range d.layouts {
		layout = l
		if n <= len(l) {
			break
		}
	}
	return normaliseLabels(layout, n)
}

// Describe fills the descriptive fields of s from the detected device and
// replaces generic labels with the device layout.
func Describe(s Stream) Stream {
	d := DetectDevice(s.Name, s.SourceID)
	s.Manufacturer = d.Manufacturer
	s.Model = d.Model
	if len(d.layouts) > 0 && hasGenericLabels(s.ChannelLabels) {
		s.ChannelLabels = d.Labels(s.ChannelCount)
	}
	return s
}

func hasGenericLabels(labels []string) bool {
	generic := normaliseLabels(nil, len(labels))
	for i := range labels {
		if labels[i] != generic[i] {
			return false
		}
	}
	return true
}
