package gate

import (
	"log/slog"
	"testing"

	"github.com/nugget/smartpark/internal/hw"
)

var testAngles = Angles{Open: 90, Closed: 0}

func TestNew_CommandsClosed(t *testing.T) {
	var servo hw.SimServo
	g := New("entry", &servo, testAngles, slog.Default())

	if g.State() != Closed {
		t.Errorf("initial state = %v, want closed", g.State())
	}
	if a, ok := servo.Angle(); !ok || a != 0 {
		t.Errorf("initial angle = %d, %v; want 0, true", a, ok)
	}
}

func TestUpdate_EntrySequence(t *testing.T) {
	var servo hw.SimServo
	g := New("entry", &servo, testAngles, slog.Default())

	// Sensor goes LOW (vehicle present) then HIGH (cleared).
	st, changed := g.Update(true)
	if !changed || st != Open {
		t.Fatalf("Update(present) = %v, %v; want open, true", st, changed)
	}
	st, changed = g.Update(false)
	if !changed || st != Closed {
		t.Fatalf("Update(clear) = %v, %v; want closed, true", st, changed)
	}

	got := servo.Angles()
	want := []int{0, 90, 0}
	if len(got) != len(want) {
		t.Fatalf("angles = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("angles = %v, want %v", got, want)
		}
	}
}

func TestUpdate_Idempotent(t *testing.T) {
	tests := []struct {
		name        string
		readings    []bool
		transitions int
		final       State
	}{
		{"all clear", []bool{false, false, false}, 0, Closed},
		{"held present", []bool{true, true, true, true}, 1, Open},
		{"two vehicles", []bool{true, true, false, false, true, false}, 4, Closed},
		{"never clears", []bool{true, true, true, true, true, true}, 1, Open},
		{"single glitch", []bool{false, true, false, false}, 2, Closed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var servo hw.SimServo
			g := New("exit", &servo, testAngles, slog.Default())

			n := 0
			prev := false
			for _, r := range tt.readings {
				_, changed := g.Update(r)
				if changed {
					n++
					if r == prev {
						t.Errorf("transition on unchanged reading %v", r)
					}
				}
				prev = r
			}
			if n != tt.transitions {
				t.Errorf("transitions = %d, want %d", n, tt.transitions)
			}
			if g.State() != tt.final {
				t.Errorf("final state = %v, want %v", g.State(), tt.final)
			}
			// One initial close plus one command per transition.
			if got := len(servo.Angles()); got != 1+tt.transitions {
				t.Errorf("actuator commands = %d, want %d", got, 1+tt.transitions)
			}
		})
	}
}
