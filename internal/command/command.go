// Package command decodes messages from the command topic and dispatches
// them to a [Handler].
package command

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/nugget/smartpark/internal/config"
)

// Handler acts on a decoded command string.
type Handler interface {
	HandleCommand(cmd string)
}

// HandlerFunc adapts a function to [Handler].
type HandlerFunc func(cmd string)

// HandleCommand calls f(cmd).
func (f HandlerFunc) HandleCommand(cmd string) { f(cmd) }

// LogHandler records commands without acting on them. No command has a
// defined effect on the gates or slots yet.
type LogHandler struct {
	Logger *slog.Logger
}

// HandleCommand logs cmd.
func (h LogHandler) HandleCommand(cmd string) {
	h.Logger.Info("command received", "command", cmd)
}

// ErrNoMessage is returned by [Decode] for a JSON object without a string
// "message" field.
var ErrNoMessage = errors.New("payload has no string message field")

type envelope struct {
	Message *string `json:"message"`
}

// Decode extracts the command from a {"message": "..."} payload.
func Decode(payload []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", err
	}
	if env.Message == nil {
		return "", ErrNoMessage
	}
	return *env.Message, nil
}

// Receiver is the inbound handler for the command topic.
type Receiver struct {
	handler Handler
	logger  *slog.Logger
}

// NewReceiver returns a Receiver dispatching to handler.
func NewReceiver(handler Handler, logger *slog.Logger) *Receiver {
	return &Receiver{handler: handler, logger: logger}
}

// HandleMessage decodes payload and dispatches the command. Payloads that
// do not decode are discarded.
func (r *Receiver) HandleMessage(topic string, payload []byte) {
	r.logger.Log(context.Background(), config.LevelTrace, "command payload",
		"topic", topic, "payload", string(payload))

	cmd, err := Decode(payload)
	if err != nil {
		r.logger.Debug("command discarded", "topic", topic, "error", err)
		return
	}
	r.logger.Debug("command decoded", "topic", topic, "command", cmd)
	r.handler.HandleCommand(cmd)
}
