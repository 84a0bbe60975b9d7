// Package mavlink connects the land detector to a flight stack over MAVLink:
// telemetry in through Receiver, landed state out through Reporter.
package mavlink

import (
	"context"
	"log/slog"
	"math"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/sweeney/land-detector/internal/telemetry"
)

// HoverThrustName is the NAMED_VALUE_FLOAT carrying the hover thrust estimate.
const HoverThrustName = "HOVER_THR"

// DefaultAutopilotComponent is MAV_COMP_ID_AUTOPILOT1.
const DefaultAutopilotComponent = 1

// PX4 main modes, carried in bits 16-23 of HEARTBEAT.custom_mode.
const (
	px4MainModeShift    = 16
	px4MainModeAltctl   = 2
	px4MainModePosctl   = 3
	px4MainModeAuto     = 4
	px4MainModeOffboard = 6
)

// Receiver turns MAVLink messages into telemetry samples.
type Receiver struct {
	events   <-chan gomavlib.Event
	store    *telemetry.Store
	clock    func() uint64
	systemID    uint8
	componentID uint8
	logger      *slog.Logger
}

// NewReceiver reads events (usually node.Events()) into store, timestamping
// samples with clock. A systemID of 0 accepts every vehicle. HEARTBEAT is
// only taken from componentID, the autopilot; 0 accepts any component.
func NewReceiver(events <-chan gomavlib.Event, store *telemetry.Store, clock func() uint64, systemID, componentID uint8, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		events:      events,
		store:       store,
		clock:       clock,
		systemID:    systemID,
		componentID: componentID,
		logger:      logger,
	}
}

// Run consumes events until ctx is done or the event channel closes.
func (r *Receiver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-r.events:
			if !ok {
				return
			}
			switch e := evt.(type) {
			case *gomavlib.EventChannelOpen:
				r.logger.Info("mavlink channel open", "channel", e.Channel.String())
			case *gomavlib.EventChannelClose:
				r.logger.Warn("mavlink channel closed", "channel", e.Channel.String())
			case *gomavlib.EventFrame:
				if r.systemID != 0 && e.Frame.GetSystemID() != r.systemID {
					continue
				}
				msg := e.Frame.GetMessage()
				// Gimbals and companions heartbeat too, unarmed
				if _, ok := msg.(*common.MessageHeartbeat); ok &&
					r.componentID != 0 && e.Frame.GetComponentID() != r.componentID {
					continue
				}
				r.HandleMessage(msg, r.clock())
			}
		}
	}
}

// HandleMessage stores the samples carried by msg. Unknown messages are ignored.
func (r *Receiver) HandleMessage(msg message.Message, nowUs uint64) {
	switch m := msg.(type) {
	case *common.MessageHeartbeat:
		if m.Autopilot == common.MAV_AUTOPILOT_INVALID {
			return
		}
		armed := m.BaseMode&common.MAV_MODE_FLAG_SAFETY_ARMED != 0
		r.store.SetTakeoffState(takeoffState(armed, m.SystemStatus), nowUs)
		r.store.SetClimbRateControl(climbRateControl(m), nowUs)

	case *common.MessageVfrHud:
		thr := float32(m.Throttle) / 100
		if thr > 1 {
			thr = 1
		}
		r.store.SetThrottle(thr, nowUs)

	case *common.MessageNamedValueFloat:
		if m.Name == HoverThrustName && m.Value > 0 && m.Value < 1 {
			r.store.SetHoverThrust(m.Value, nowUs)
		}

	case *common.MessagePositionTargetLocalNed:
		if !math.IsNaN(float64(m.Vz)) {
			r.store.SetVelocitySetpointZ(m.Vz, nowUs)
		}

	case *common.MessageAttitude:
		r.store.SetAngularRate(telemetry.Vector3{X: m.Rollspeed, Y: m.Pitchspeed, Z: m.Yawspeed}, nowUs)

	case *common.MessageLocalPositionNed:
		r.store.SetVelocity(telemetry.Vector3{X: m.Vx, Y: m.Vy, Z: m.Vz}, nowUs)

	case *common.MessageDistanceSensor:
		if m.Orientation != common.MAV_SENSOR_ROTATION_PITCH_270 {
			return
		}
		// Out-of-range readings are dropped; the sample then goes stale
		if m.CurrentDistance < m.MinDistance || m.CurrentDistance > m.MaxDistance {
			return
		}
		r.store.SetDistBottom(float32(m.CurrentDistance)/100, nowUs)
	}
}

// climbRateControl reports whether the flight mode controls vertical speed.
// PX4 modes are decoded from custom_mode; other autopilots fall back to the
// guided and auto flags.
func climbRateControl(m *common.MessageHeartbeat) bool {
	if m.Autopilot == common.MAV_AUTOPILOT_PX4 && m.BaseMode&common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED != 0 {
		switch (m.CustomMode >> px4MainModeShift) & 0xff {
		case px4MainModeAltctl, px4MainModePosctl, px4MainModeAuto, px4MainModeOffboard:
			return true
		default:
			return false
		}
	}
	return m.BaseMode&(common.MAV_MODE_FLAG_GUIDED_ENABLED|common.MAV_MODE_FLAG_AUTO_ENABLED) != 0
}

func takeoffState(armed bool, status common.MAV_STATE) telemetry.TakeoffState {
	switch {
	case !armed:
		return telemetry.TakeoffDisarmed
	case status == common.MAV_STATE_STANDBY:
		return telemetry.TakeoffReadyForTakeoff
	default:
		return telemetry.TakeoffFlight
	}
}
