package internal

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/sweeney/land-detector/internal/detector"
	"github.com/sweeney/land-detector/internal/gpio"
	"github.com/sweeney/land-detector/internal/mavlink"
	"github.com/sweeney/land-detector/internal/mqtt"
	"github.com/sweeney/land-detector/internal/multicopter"
	"github.com/sweeney/land-detector/internal/params"
	"github.com/sweeney/land-detector/internal/telemetry"
)

const tickStep = 50 * time.Millisecond

// vehicle describes what the flight stack reports during one phase of a flight.
type vehicle struct {
	armed      bool
	vzSetpoint float32 // m/s, down positive
	throttle   uint16  // percent
	vz         float32 // m/s, down positive
	distCm     uint16
}

func (v vehicle) messages() []message.Message {
	mode := common.MAV_MODE_FLAG(0)
	if v.armed {
		mode = common.MAV_MODE_FLAG_SAFETY_ARMED | common.MAV_MODE_FLAG_GUIDED_ENABLED
	}
	return []message.Message{
		&common.MessageHeartbeat{BaseMode: mode, SystemStatus: common.MAV_STATE_ACTIVE},
		&common.MessageVfrHud{Throttle: v.throttle},
		&common.MessageNamedValueFloat{Name: mavlink.HoverThrustName, Value: 0.5},
		&common.MessagePositionTargetLocalNed{Vz: v.vzSetpoint},
		&common.MessageAttitude{},
		&common.MessageLocalPositionNed{Vz: v.vz},
		&common.MessageDistanceSensor{
			MinDistance:     10,
			MaxDistance:     1000,
			CurrentDistance: v.distCm,
			Orientation:     common.MAV_SENSOR_ROTATION_PITCH_270,
		},
	}
}

type phase struct {
	name     string
	duration time.Duration
	vehicle  vehicle
}

var flight = []phase{
	{"hover", 2 * time.Second, vehicle{armed: true, throttle: 50, distCm: 500}},
	{"touchdown", 3 * time.Second, vehicle{armed: true, vzSetpoint: 0.5, throttle: 10, vz: 0.05, distCm: 25}},
	{"disarmed", time.Second, vehicle{throttle: 0, distCm: 25}},
	{"takeoff", 2 * time.Second, vehicle{armed: true, vzSetpoint: -1.5, throttle: 70, vz: -1, distCm: 300}},
	{"tumble", time.Second, vehicle{armed: true, vzSetpoint: -1.5, throttle: 0, vz: 6, distCm: 300}},
}

// recordingWriter stands in for the MAVLink node.
type recordingWriter struct {
	msgs []message.Message
}

func (w *recordingWriter) WriteMessageAll(msg message.Message) error {
	w.msgs = append(w.msgs, msg)
	return nil
}

// harness wires the detector the way the daemon does, with fakes at the edges.
type harness struct {
	inputs    *telemetry.Store
	receiver  *mavlink.Receiver
	engine    *detector.Engine
	publisher *mqtt.FakePublisher
	writer    *recordingWriter
	indicator *gpio.FakeIndicator

	nowUs uint64
	shown detector.State
}

func newHarness(p params.Parameters) *harness {
	h := &harness{
		inputs:    telemetry.NewStore(),
		publisher: mqtt.NewFakePublisher(),
		writer:    &recordingWriter{},
		indicator: gpio.NewFakeIndicator(),
		nowUs:     1,
	}
	h.receiver = mavlink.NewReceiver(nil, h.inputs, nil, 0, 0, nil)
	publishers := detector.Publishers{h.publisher, mavlink.NewReporter(h.writer)}
	h.engine = detector.New(multicopter.New(), h.inputs, params.NewStore(p, nil, nil), publishers, detector.DefaultConfig(), nil)
	return h
}

// fly runs each phase, feeding its messages and ticking the engine every
// tickStep, and returns the state at the end of every phase.
func (h *harness) fly(t *testing.T, phases []phase) map[string]detector.State {
	t.Helper()
	end := make(map[string]detector.State)
	for _, ph := range phases {
		var out detector.Output
		for elapsed := time.Duration(0); elapsed < ph.duration; elapsed += tickStep {
			for _, msg := range ph.vehicle.messages() {
				h.receiver.HandleMessage(msg, h.nowUs)
			}
			out = h.engine.Update(h.nowUs)
			if out.State != h.shown {
				if err := h.indicator.Show(out.State); err != nil {
					t.Fatalf("%s: indicator error: %v", ph.name, err)
				}
				h.shown = out.State
			}
			h.nowUs += uint64(tickStep / time.Microsecond)
		}
		end[ph.name] = out.State
	}
	return end
}

func dedupe[T comparable](in []T) []T {
	var out []T
	for _, v := range in {
		if len(out) == 0 || out[len(out)-1] != v {
			out = append(out, v)
		}
	}
	return out
}

// TestIntegrationFullFlight tests the complete flow from MAVLink telemetry to
// MQTT, MAVLink and the LEDs through a landing, a takeoff and a free-fall.
func TestIntegrationFullFlight(t *testing.T) {
	h := newHarness(params.Default())
	end := h.fly(t, flight)

	wantEnd := map[string]detector.State{
		"hover":     detector.StateFlying,
		"touchdown": detector.StateLanded,
		"disarmed":  detector.StateLanded,
		"takeoff":   detector.StateFlying,
		"tumble":    detector.StateFreefall,
	}
	for name, want := range wantEnd {
		if end[name] != want {
			t.Errorf("end of %s: got %s, want %s", name, end[name], want)
		}
	}

	// Published states pass through the whole landing lattice
	var states []detector.State
	for _, out := range h.publisher.Outputs {
		states = append(states, out.State)
	}
	want := []detector.State{
		detector.StateFlying,
		detector.StateGroundContact,
		detector.StateMaybeLanded,
		detector.StateLanded,
		detector.StateFlying,
		detector.StateFreefall,
	}
	got := dedupe(states)
	if len(got) != len(want) {
		t.Fatalf("published states: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("published state %d: got %s, want %s", i, got[i], want[i])
		}
	}

	// LEDs saw the same sequence
	if len(h.indicator.States) != len(want) {
		t.Errorf("indicator: got %v, want %v", h.indicator.States, want)
	}
	if landed, freefall := h.indicator.Levels(); landed || !freefall {
		t.Errorf("LEDs: expected free-fall only, got landed=%v freefall=%v", landed, freefall)
	}

	stats := h.engine.Stats()
	if stats.Landings != 1 || stats.Takeoffs != 1 || stats.Freefalls != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestIntegrationMAVLinkReport(t *testing.T) {
	h := newHarness(params.Default())
	h.fly(t, flight)

	var reported []common.MAV_LANDED_STATE
	for i, msg := range h.writer.msgs {
		ess, ok := msg.(*common.MessageExtendedSysState)
		if !ok {
			t.Fatalf("message %d: unexpected type %T", i, msg)
		}
		reported = append(reported, ess.LandedState)
	}

	want := []common.MAV_LANDED_STATE{
		common.MAV_LANDED_STATE_IN_AIR,
		common.MAV_LANDED_STATE_ON_GROUND,
		common.MAV_LANDED_STATE_IN_AIR,
	}
	got := dedupe(reported)
	if len(got) != len(want) {
		t.Fatalf("reported landed states: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("reported state %d: got %v, want %v", i, got[i], want[i])
		}
	}

	// Both publishers are fed the same outputs
	if len(h.writer.msgs) != len(h.publisher.Outputs) {
		t.Errorf("MAVLink reports %d, MQTT outputs %d", len(h.writer.msgs), len(h.publisher.Outputs))
	}
}

func TestIntegrationPayloads(t *testing.T) {
	h := newHarness(params.Default())
	h.fly(t, flight[:2])

	if len(h.publisher.Payloads) == 0 {
		t.Fatal("no payloads published")
	}
	var parsed struct {
		LandDetector struct {
			TimestampUs    uint64 `json:"timestamp_us"`
			State          string `json:"state"`
			GroundContact  bool   `json:"ground_contact"`
			MaybeLanded    bool   `json:"maybe_landed"`
			Landed         bool   `json:"landed"`
			InGroundEffect bool   `json:"in_ground_effect"`
			Flags          struct {
				InDescend      bool `json:"in_descend"`
				HasLowThrottle bool `json:"has_low_throttle"`
			} `json:"flags"`
		} `json:"land_detector"`
	}
	last := h.publisher.Payloads[len(h.publisher.Payloads)-1]
	if err := json.Unmarshal(last, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, last)
	}

	ld := parsed.LandDetector
	if ld.State != "LANDED" || !ld.Landed || !ld.MaybeLanded || !ld.GroundContact {
		t.Errorf("unexpected landed payload: %s", last)
	}
	if !ld.InGroundEffect {
		t.Error("25 cm above ground should be in ground effect")
	}
	if !ld.Flags.InDescend || !ld.Flags.HasLowThrottle {
		t.Errorf("unexpected flags: %+v", ld.Flags)
	}
	if ld.TimestampUs == 0 {
		t.Error("timestamp_us should be set")
	}
}

// TestIntegrationLongerTrigTime checks that a slower trigger time delays the
// landed state without affecting takeoff detection.
func TestIntegrationLongerTrigTime(t *testing.T) {
	p := params.Default()
	p.TrigTime = 3 * time.Second

	h := newHarness(p)
	end := h.fly(t, flight[:2])
	if end["touchdown"] == detector.StateLanded {
		t.Error("3s trigger time should not reach LANDED within 3s of touchdown")
	}

	end = h.fly(t, []phase{
		{"settle", 2500 * time.Millisecond, flight[1].vehicle},
		flight[3],
	})
	if end["settle"] != detector.StateLanded {
		t.Errorf("end of settle: got %s, want LANDED", end["settle"])
	}
	if end["takeoff"] != detector.StateFlying {
		t.Errorf("end of takeoff: got %s, want FLYING", end["takeoff"])
	}
}

// TestIntegrationPublishFailure verifies that a failing publisher does not
// starve the others or stop detection.
func TestIntegrationPublishFailure(t *testing.T) {
	h := newHarness(params.Default())
	h.publisher.PublishError = errors.New("broker unavailable")

	end := h.fly(t, flight[:2])
	if end["touchdown"] != detector.StateLanded {
		t.Errorf("end of touchdown: got %s, want LANDED", end["touchdown"])
	}
	if len(h.publisher.Outputs) != 0 {
		t.Errorf("failing publisher recorded %d outputs", len(h.publisher.Outputs))
	}
	if len(h.writer.msgs) == 0 {
		t.Error("MAVLink reporter should still receive outputs")
	}
}
