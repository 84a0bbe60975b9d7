// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/land-detector/internal/detector"
)

// Topic is the MQTT topic for land detector output.
const Topic = "vehicle/land_detector/state"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "vehicle/land_detector/system"

// Publisher publishes detector output and lifecycle events to MQTT.
type Publisher interface {
	// PublishLanded sends a detector output to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishLanded(out detector.Output) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	LandDetector LandDetectorPayload `json:"land_detector"`
}

// LandDetectorPayload carries one detector output.
type LandDetectorPayload struct {
	TimestampUs    uint64       `json:"timestamp_us"`
	State          string       `json:"state"`
	Freefall       bool         `json:"freefall"`
	GroundContact  bool         `json:"ground_contact"`
	MaybeLanded    bool         `json:"maybe_landed"`
	Landed         bool         `json:"landed"`
	InGroundEffect bool         `json:"in_ground_effect"`
	Flags          FlagsPayload `json:"flags"`
}

// FlagsPayload carries the diagnostic flags of the cycle.
type FlagsPayload struct {
	InDescend                   bool `json:"in_descend"`
	HasLowThrottle              bool `json:"has_low_throttle"`
	HorizontalMovement          bool `json:"horizontal_movement"`
	VerticalMovement            bool `json:"vertical_movement"`
	RotationalMovement          bool `json:"rotational_movement"`
	CloseToGroundOrSkippedCheck bool `json:"close_to_ground_or_skipped_check"`
}

// FormatPayload creates the JSON payload for a detector output.
func FormatPayload(out detector.Output) ([]byte, error) {
	payload := Payload{
		LandDetector: LandDetectorPayload{
			TimestampUs:    out.TimestampUs,
			State:          out.State.String(),
			Freefall:       out.Freefall,
			GroundContact:  out.GroundContact,
			MaybeLanded:    out.MaybeLanded,
			Landed:         out.Landed,
			InGroundEffect: out.InGroundEffect,
			Flags: FlagsPayload{
				InDescend:                   out.InDescend,
				HasLowThrottle:              out.HasLowThrottle,
				HorizontalMovement:          out.HorizontalMovement,
				VerticalMovement:            out.VerticalMovement,
				RotationalMovement:          out.RotationalMovement,
				CloseToGroundOrSkippedCheck: out.CloseToGroundOrSkippedCheck,
			},
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
