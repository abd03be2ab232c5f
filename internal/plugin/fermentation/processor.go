// Package fermentation reduces the raw bubble counter and temperature samples of an
// airlock fermentation monitor into gravity, alcohol and CO2 estimates.
//
// All values are stored in SI units (Celsius, liters) and converted to the display
// units selected by the app on read.
package fermentation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"telemetry_relay/internal/pin"
)

// Hardware-reserved pins.
const (
	PinBubbles     = 100
	PinTemperature = 101
)

// Read pins.
const (
	PinBPM               = 102
	PinTemperatureOut    = 103
	PinVolume            = 104
	PinOriginalGravity   = 105
	PinSpecificGravity   = 106
	PinABV               = 107
	PinTemperatureLabel  = 108
	PinVolumeLabel       = 109
	PinBubbleTotal       = 110
	PinBubblesPerGravity = 118
	PinCO2               = 119
)

// App-reserved configuration pins.
const (
	PinSetVolume          = 111
	PinSetOriginalGravity = 112
	PinSetSpecificGravity = 113
	PinSetTemperatureUnit = 114
	PinSetVolumeUnit      = 115
	PinResetBatch         = 116
	PinSetLearning        = 117
)

// Display units as encoded by the app menus.
const (
	Fahrenheit = 1
	Celsius    = 2

	Gallons = 1
	Liters  = 2
)

const (
	// StaleAfter is how long bpm and temperature stay valid after the last bubble sample.
	StaleAfter = 16 * time.Minute

	GallonsPerLiter          = 0.264172
	DefaultBubblesPerGravity = 850000

	minLearnedBubblesPerGravity = 300000
	maxLearnedBubblesPerGravity = 1000000
)

var ErrInvalidValue = errors.New("invalid pin value")

// IsReservedByApp reports whether a pin is owned by the processor on the app side.
func IsReservedByApp(t pin.Type, p int) bool {
	return t == pin.Virtual && p > PinTemperature && p < 120
}

// IsReservedByHardware reports whether a pin carries raw samples for the processor.
func IsReservedByHardware(t pin.Type, p int) bool {
	return t == pin.Virtual && (p == PinBubbles || p == PinTemperature)
}

// state is the serialized form of a processor.
type state struct {
	BPM                   int       `json:"bpm"`
	Temperature           float64   `json:"temperature"`
	Volume                *float64  `json:"volume,omitempty"`
	OriginalGravity       *float64  `json:"og,omitempty"`
	SpecificGravity       *float64  `json:"sg,omitempty"`
	ABV                   *float64  `json:"abv,omitempty"`
	CO2                   *float64  `json:"co2,omitempty"`
	TemperatureUnit       int       `json:"temperatureUnit"`
	VolumeUnit            int       `json:"volumeUnit"`
	Bubbles               int       `json:"bubbles"`
	HardwareBubbles       int       `json:"hardwareBubbles"`
	LastSample            time.Time `json:"lastSample"`
	Learning              bool      `json:"learning"`
	BubblesPerGravity     int       `json:"bubblesPerGravity"`
	BatchReadyForLearning bool      `json:"batchReadyForLearning"`
}

// Processor holds the fermentation state of one device. Safe for concurrent use.
type Processor struct {
	mu  sync.Mutex
	now func() time.Time
	st  state
}

// New returns a processor with app defaults: Fahrenheit, US gallons, learning off.
func New() *Processor {
	return &Processor{
		now: time.Now,
		st: state{
			TemperatureUnit:       Fahrenheit,
			VolumeUnit:            Gallons,
			BubblesPerGravity:     DefaultBubblesPerGravity,
			BatchReadyForLearning: true,
		},
	}
}

// ProcessHardware applies a raw sample written by the device. Pins other than the
// hardware-reserved ones are ignored.
func (p *Processor) ProcessHardware(pinNo int, value string) error {
	switch pinNo {
	case PinBubbles:
		count, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: bubbles %q: %v", ErrInvalidValue, value, err)
		}
		p.mu.Lock()
		p.bubblesReceived(count)
		p.mu.Unlock()
	case PinTemperature:
		raw, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("%w: temperature %q: %v", ErrInvalidValue, value, err)
		}
		p.mu.Lock()
		p.st.Temperature = pcbHeatCorrection(raw)
		p.mu.Unlock()
	}
	return nil
}

// ProcessApp applies a configuration value written by the app. Values are menu indexes.
func (p *Processor) ProcessApp(pinNo int, value string) error {
	idx, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%w: pin %d %q: %v", ErrInvalidValue, pinNo, value, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch pinNo {
	case PinSetVolume:
		p.setVolume(idx)
	case PinSetOriginalGravity:
		og := gravityFromIndex(idx)
		p.st.OriginalGravity = &og
		p.estimate()
	case PinSetSpecificGravity:
		p.overrideSpecificGravity(gravityFromIndex(idx))
	case PinSetTemperatureUnit:
		p.st.TemperatureUnit = idx
	case PinSetVolumeUnit:
		p.setVolumeUnit(idx)
	case PinResetBatch:
		if idx == 1 {
			p.st.Bubbles = 0
			p.estimate()
			p.st.BatchReadyForLearning = true
		}
	case PinSetLearning:
		p.st.Learning = idx == 1
	}
	return nil
}

// Pull returns the display value of a read pin. ok is false when the value is undefined
// or the pin is not served by the processor.
func (p *Processor) Pull(pinNo int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch pinNo {
	case PinBPM:
		if p.isStale() {
			return pin.Stale, true
		}
		return strconv.Itoa(p.st.BPM), true
	case PinTemperatureOut:
		if p.isStale() {
			return pin.Stale, true
		}
		return formatFloat(p.temperatureInUnit()), true
	case PinVolume:
		return p.volumeInUnit(p.st.Volume)
	case PinOriginalGravity:
		return formatOptional(p.st.OriginalGravity)
	case PinSpecificGravity:
		return formatOptional(p.st.SpecificGravity)
	case PinABV:
		return formatOptional(p.st.ABV)
	case PinTemperatureLabel:
		if p.st.TemperatureUnit == Fahrenheit {
			return "°F", true
		}
		return "°C", true
	case PinVolumeLabel:
		if p.st.VolumeUnit == Gallons {
			return "gal", true
		}
		return "L", true
	case PinBubbleTotal:
		return strconv.Itoa(p.st.Bubbles), true
	case PinBubblesPerGravity:
		return strconv.Itoa(p.st.BubblesPerGravity), true
	case PinCO2:
		return p.volumeInUnit(p.st.CO2)
	default:
		return "", false
	}
}

// MarshalJSON snapshots the processor state.
func (p *Processor) MarshalJSON() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return json.Marshal(p.st)
}

// UnmarshalJSON restores a snapshot. Missing unit fields fall back to defaults.
func (p *Processor) UnmarshalJSON(b []byte) error {
	st := New().st
	if err := json.Unmarshal(b, &st); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.now == nil {
		p.now = time.Now
	}
	p.st = st
	return nil
}

func (p *Processor) bubblesReceived(count int) {
	now := p.now()
	if !p.st.LastSample.IsZero() {
		diff := count - p.st.HardwareBubbles
		if count < p.st.HardwareBubbles {
			// counter restarted on the device
			diff = count
		}
		minutes := float64(now.Sub(p.st.LastSample).Milliseconds()) / 60000
		if minutes > 0 {
			p.st.BPM = int(math.Round(float64(diff) / minutes))
		} else {
			p.st.BPM = 0
		}
		p.st.HardwareBubbles = count
		p.st.Bubbles += diff
		p.estimate()
	} else {
		p.st.HardwareBubbles = count
	}
	p.st.LastSample = now
}

func (p *Processor) setVolume(idx int) {
	v := float64(idx) / 10
	if p.st.VolumeUnit != Liters {
		v = v / GallonsPerLiter
	}
	p.st.Volume = &v
	p.estimate()
}

func (p *Processor) setVolumeUnit(unit int) {
	if p.st.Volume != nil {
		v := *p.st.Volume
		switch {
		case p.st.VolumeUnit == Gallons && unit == Liters:
			v = v * GallonsPerLiter
		case p.st.VolumeUnit == Liters && unit == Gallons:
			v = v / GallonsPerLiter
		}
		p.st.Volume = &v
	}
	p.st.VolumeUnit = unit
}

func (p *Processor) overrideSpecificGravity(sg float64) {
	og := valueOrZero(p.st.OriginalGravity)
	volume := valueOrZero(p.st.Volume)

	learned := 0
	if denom := (og - sg) * volume; denom > 0 {
		learned = int(float64(p.st.Bubbles) / denom)
	}

	if p.st.Learning && p.st.BatchReadyForLearning &&
		learned > minLearnedBubblesPerGravity && learned < maxLearnedBubblesPerGravity {
		p.st.BubblesPerGravity = learned
	} else {
		p.st.BatchReadyForLearning = false
		if og < sg {
			p.st.Bubbles = 0
		} else {
			p.st.Bubbles = int((og - sg) * float64(p.st.BubblesPerGravity) * volume)
		}
	}
	p.estimate()
}

// estimate recalculates SG, ABV and CO2 once volume and OG are known.
func (p *Processor) estimate() {
	if p.st.Volume == nil || p.st.OriginalGravity == nil {
		return
	}
	og, volume := *p.st.OriginalGravity, *p.st.Volume
	if volume <= 0 || p.st.BubblesPerGravity <= 0 {
		// outputs from a previous volume no longer hold
		p.st.SpecificGravity, p.st.ABV, p.st.CO2 = nil, nil, nil
		return
	}

	sg := og - (float64(p.st.Bubbles)/volume)/float64(p.st.BubblesPerGravity)
	abv := 76.08 * (og - sg) / (1.775 - og) * sg / 0.794
	co2 := (og - sg) * 1000 * volume * 1.041 / 1.842

	p.st.SpecificGravity = &sg
	p.st.ABV = &abv
	p.st.CO2 = &co2
}

func (p *Processor) isStale() bool {
	return p.st.LastSample.IsZero() || p.now().Sub(p.st.LastSample) >= StaleAfter
}

func (p *Processor) temperatureInUnit() float64 {
	if p.st.TemperatureUnit == Celsius {
		return p.st.Temperature
	}
	return p.st.Temperature*1.8 + 32
}

func (p *Processor) volumeInUnit(v *float64) (string, bool) {
	if v == nil {
		return "", false
	}
	if p.st.VolumeUnit == Liters {
		return formatFloat(*v), true
	}
	return formatFloat(*v * GallonsPerLiter), true
}

// pcbHeatCorrection compensates for the heat produced by the device board itself.
func pcbHeatCorrection(raw float64) float64 {
	return 0.9133*raw - 1.145
}

func gravityFromIndex(idx int) float64 {
	return float64(idx-1)/1000 + 1
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func formatOptional(v *float64) (string, bool) {
	if v == nil {
		return "", false
	}
	return formatFloat(*v), true
}

// formatFloat prints the shortest exact representation, keeping a decimal point on whole numbers.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
