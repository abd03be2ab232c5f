package pin

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Type is a hardware pin kind, encoded on the wire as a single char.
type Type byte

const (
	Digital Type = 'd'
	Analog  Type = 'a'
	Virtual Type = 'v'
)

// Separator joins body parts.
const Separator = " "

// Stale is sent instead of a value when the last hardware sample is too old.
const Stale = "--"

var (
	ErrInvalidBody    = errors.New("invalid body")
	ErrUnknownPinType = errors.New("unknown pin type")
)

// ParseType maps the wire char to a pin type.
func ParseType(c byte) (Type, error) {
	switch t := Type(c); t {
	case Digital, Analog, Virtual:
		return t, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPinType, c)
	}
}

func (t Type) String() string {
	switch t {
	case Digital:
		return "DIGITAL"
	case Analog:
		return "ANALOG"
	case Virtual:
		return "VIRTUAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText stores the type as its upper case name.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "DIGITAL", "D":
		*t = Digital
	case "ANALOG", "A":
		*t = Analog
	case "VIRTUAL", "V":
		*t = Virtual
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPinType, b)
	}
	return nil
}

// MakeHardwareBody builds a pin write body, e.g. "vw 110 5".
func MakeHardwareBody(t Type, p int, value string) string {
	return string(t) + "w" + Separator + strconv.Itoa(p) + Separator + value
}

// MakeReadingCommand builds a pin read body, e.g. "vr 5".
func MakeReadingCommand(t Type, p int) string {
	return string(t) + "r" + Separator + strconv.Itoa(p)
}

// Prefix addresses a body to one device of a dashboard, e.g. "1-0 vw 110 5".
func Prefix(dashID, deviceID int, body string) string {
	return DeviceKey(dashID, deviceID) + Separator + body
}

// DeviceKey renders the "<dashID>-<deviceID>" address.
func DeviceKey(dashID, deviceID int) string {
	return strconv.Itoa(dashID) + "-" + strconv.Itoa(deviceID)
}

// Op is the operation char of a body: 'w' write, 'r' read.
type Op byte

const (
	Write Op = 'w'
	Read  Op = 'r'
)

// Command is a parsed pin body.
type Command struct {
	Type  Type
	Op    Op
	Pin   int
	Value string
}

// Parse splits a body such as "vw 100 5" or "vr 5".
func Parse(body string) (Command, error) {
	parts := strings.SplitN(strings.TrimSpace(body), Separator, 3)
	if len(parts) < 2 || len(parts[0]) != 2 {
		return Command{}, fmt.Errorf("%w: %q", ErrInvalidBody, body)
	}
	t, err := ParseType(parts[0][0])
	if err != nil {
		return Command{}, err
	}
	op := Op(parts[0][1])
	if op != Write && op != Read {
		return Command{}, fmt.Errorf("%w: unknown op in %q", ErrInvalidBody, body)
	}
	p, err := strconv.Atoi(parts[1])
	if err != nil || p < 0 {
		return Command{}, fmt.Errorf("%w: bad pin %q", ErrInvalidBody, parts[1])
	}
	cmd := Command{Type: t, Op: op, Pin: p}
	if op == Write {
		if len(parts) != 3 || parts[2] == "" {
			return Command{}, fmt.Errorf("%w: missing value in %q", ErrInvalidBody, body)
		}
		cmd.Value = parts[2]
	}
	return cmd, nil
}
