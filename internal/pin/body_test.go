package pin

import (
	"errors"
	"testing"
)

func TestMakeBodies(t *testing.T) {
	t.Parallel()

	if got := MakeHardwareBody(Virtual, 110, "5"); got != "vw 110 5" {
		t.Fatalf("expected %q, got %q", "vw 110 5", got)
	}
	if got := MakeReadingCommand(Analog, 3); got != "ar 3" {
		t.Fatalf("expected %q, got %q", "ar 3", got)
	}
	if got := Prefix(1, 0, "vw 107 0.26"); got != "1-0 vw 107 0.26" {
		t.Fatalf("unexpected prefixed body %q", got)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    Command
		wantErr error
	}{
		{name: "virtual write", body: "vw 100 5", want: Command{Type: Virtual, Op: Write, Pin: 100, Value: "5"}},
		{name: "value keeps spaces", body: "vw 5 hello world", want: Command{Type: Virtual, Op: Write, Pin: 5, Value: "hello world"}},
		{name: "digital read", body: "dr 13", want: Command{Type: Digital, Op: Read, Pin: 13}},
		{name: "missing value", body: "vw 100", wantErr: ErrInvalidBody},
		{name: "bad pin", body: "vw x 1", wantErr: ErrInvalidBody},
		{name: "bad op", body: "vx 1 1", wantErr: ErrInvalidBody},
		{name: "bad type", body: "zw 1 1", wantErr: ErrUnknownPinType},
		{name: "empty", body: "", wantErr: ErrInvalidBody},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.body)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestTypeText(t *testing.T) {
	t.Parallel()

	var typ Type
	if err := typ.UnmarshalText([]byte("virtual")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if typ != Virtual {
		t.Fatalf("expected Virtual, got %v", typ)
	}
	b, _ := typ.MarshalText()
	if string(b) != "VIRTUAL" {
		t.Fatalf("expected VIRTUAL, got %s", b)
	}
	if err := typ.UnmarshalText([]byte("nope")); !errors.Is(err, ErrUnknownPinType) {
		t.Fatalf("expected ErrUnknownPinType, got %v", err)
	}
}
