package command

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/nugget/smartpark/internal/config"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{"unlock", `{"message":"unlock"}`, "unlock", false},
		{"empty string", `{"message":""}`, "", false},
		{"extra fields", `{"message":"open","from":"app"}`, "open", false},
		{"no message", `{"foo":1}`, "", true},
		{"numeric message", `{"message":5}`, "", true},
		{"null message", `{"message":null}`, "", true},
		{"array", `["unlock"]`, "", true},
		{"not json", `unlock`, "", true},
		{"empty", ``, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode(%q) error = %v, wantErr %v", tt.payload, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Decode(%q) = %q, want %q", tt.payload, got, tt.want)
			}
		})
	}
}

func TestDecode_MissingMessageSentinel(t *testing.T) {
	_, err := Decode([]byte(`{"foo":1}`))
	if !errors.Is(err, ErrNoMessage) {
		t.Errorf("error = %v, want ErrNoMessage", err)
	}
}

func TestReceiver_Dispatch(t *testing.T) {
	var got []string
	r := NewReceiver(HandlerFunc(func(cmd string) {
		got = append(got, cmd)
	}), slog.Default())

	r.HandleMessage("esp32/SmartParking/commands", []byte(`{"message":"unlock"}`))
	r.HandleMessage("esp32/SmartParking/commands", []byte(`{"foo":1}`))
	r.HandleMessage("esp32/SmartParking/commands", []byte(`garbage`))

	if len(got) != 1 || got[0] != "unlock" {
		t.Errorf("dispatched = %v, want [unlock]", got)
	}
}

func TestReceiver_DiscardIsDebugOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := NewReceiver(HandlerFunc(func(string) {
		t.Error("handler should not be called")
	}), logger)

	r.HandleMessage("t", []byte(`{"foo":1}`))

	out := buf.String()
	if !strings.Contains(out, "level=DEBUG") || !strings.Contains(out, "command discarded") {
		t.Errorf("log = %q, want a debug discard line", out)
	}
	if strings.Contains(out, "level=WARN") || strings.Contains(out, "level=ERROR") {
		t.Errorf("discard should not log above debug: %q", out)
	}
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer
	h := LogHandler{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	h.HandleCommand("unlock")

	if !strings.Contains(buf.String(), "command=unlock") {
		t.Errorf("log = %q, want command=unlock", buf.String())
	}
}

func TestReceiver_RawPayloadAtTrace(t *testing.T) {
	var buf bytes.Buffer
	r := NewReceiver(HandlerFunc(func(string) {}), config.NewLogger(&buf, config.LevelTrace, "text"))

	// Undecodable payloads are still visible at trace.
	r.HandleMessage("esp32/SmartParking/commands", []byte(`{"foo":1}`))

	out := buf.String()
	if !strings.Contains(out, "level=TRACE") || !strings.Contains(out, "command payload") || !strings.Contains(out, `foo`) {
		t.Errorf("log = %q, want the raw payload at TRACE", out)
	}
}
