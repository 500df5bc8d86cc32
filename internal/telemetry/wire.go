package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MaxPayloadSize bounds an encoded event. The schema is fixed, so an
// event that does not fit is a programming error rather than a runtime
// condition.
const MaxPayloadSize = 256

// Wire status values.
const (
	statusOccupied = "occupied"
	statusVacant   = "vacant"
)

// wireRecord is one element of the status topic array:
//
//	[{"slot_id":"slot1","vehicleid":"abc-123","phase":"entry",
//	  "data":{"status":"occupied","timestamp":1700000000}}]
type wireRecord struct {
	SlotID    string   `json:"slot_id"`
	VehicleID string   `json:"vehicleid"`
	Phase     string   `json:"phase"`
	Data      wireData `json:"data"`
}

type wireData struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// ErrMalformed is returned by Decode for payloads outside the schema.
var ErrMalformed = errors.New("malformed telemetry payload")

// Encode renders ev as the status topic payload. It panics if the result
// exceeds [MaxPayloadSize].
func Encode(ev Event) []byte {
	status := statusVacant
	if ev.Occupied {
		status = statusOccupied
	}
	b, err := json.Marshal([]wireRecord{{
		SlotID:    ev.SlotID,
		VehicleID: ev.VehicleID,
		Phase:     string(ev.Phase),
		Data:      wireData{Status: status, Timestamp: ev.Timestamp},
	}})
	if err != nil {
		panic(fmt.Sprintf("telemetry: encode %s event: %v", ev.SlotID, err))
	}
	if len(b) > MaxPayloadSize {
		panic(fmt.Sprintf("telemetry: encoded %s event is %d bytes, limit %d", ev.SlotID, len(b), MaxPayloadSize))
	}
	return b
}

// Decode parses a status topic payload back into an Event. The payload
// must be an array holding exactly one record with a known phase and
// status.
func Decode(payload []byte) (Event, error) {
	var recs []wireRecord
	if err := json.Unmarshal(payload, &recs); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(recs) != 1 {
		return Event{}, fmt.Errorf("%w: %d records, want 1", ErrMalformed, len(recs))
	}
	r := recs[0]

	phase := Phase(r.Phase)
	if phase != PhaseEntry && phase != PhaseExit {
		return Event{}, fmt.Errorf("%w: phase %q", ErrMalformed, r.Phase)
	}

	var occupied bool
	switch r.Data.Status {
	case statusOccupied:
		occupied = true
	case statusVacant:
	default:
		return Event{}, fmt.Errorf("%w: status %q", ErrMalformed, r.Data.Status)
	}

	return Event{
		SlotID:    r.SlotID,
		VehicleID: r.VehicleID,
		Phase:     phase,
		Occupied:  occupied,
		Timestamp: r.Data.Timestamp,
	}, nil
}
