package mqtt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/land-detector/internal/detector"
)

func TestFormatPayload(t *testing.T) {
	out := detector.Output{
		TimestampUs:   12_500_000,
		State:         detector.StateMaybeLanded,
		GroundContact: true,
		MaybeLanded:   true,
		Flags: detector.Flags{
			InDescend:                   true,
			HasLowThrottle:              true,
			CloseToGroundOrSkippedCheck: true,
		},
	}

	payload, err := FormatPayload(out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"land_detector":{"timestamp_us":12500000,"state":"MAYBE_LANDED","freefall":false,` +
		`"ground_contact":true,"maybe_landed":true,"landed":false,"in_ground_effect":false,` +
		`"flags":{"in_descend":true,"has_low_throttle":true,"horizontal_movement":false,` +
		`"vertical_movement":false,"rotational_movement":false,"close_to_ground_or_skipped_check":true}}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatPayloadStates(t *testing.T) {
	tests := []struct {
		state     detector.State
		wantState string
	}{
		{detector.StateUnknown, "UNKNOWN"},
		{detector.StateFreefall, "FREEFALL"},
		{detector.StateFlying, "FLYING"},
		{detector.StateGroundContact, "GROUND_CONTACT"},
		{detector.StateMaybeLanded, "MAYBE_LANDED"},
		{detector.StateLanded, "LANDED"},
	}

	for _, tt := range tests {
		t.Run(tt.wantState, func(t *testing.T) {
			payload, err := FormatPayload(detector.Output{State: tt.state})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var parsed Payload
			if err := json.Unmarshal(payload, &parsed); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if parsed.LandDetector.State != tt.wantState {
				t.Errorf("state: got %s, want %s", parsed.LandDetector.State, tt.wantState)
			}
		})
	}
}

func TestTopics(t *testing.T) {
	if Topic != "vehicle/land_detector/state" {
		t.Errorf("unexpected topic: %s", Topic)
	}
	if TopicSystem != "vehicle/land_detector/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 10, 0, 0, 0, loc),
		Event:     "STARTUP",
	}

	payload, _ := FormatSystemPayload(event)
	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Timestamp != "2026-02-10T08:00:00Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.System.Timestamp)
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload not passed through: %s", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.PublishLanded(detector.Output{State: detector.StateLanded}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Outputs) != 1 || f.Outputs[0].State != detector.StateLanded {
		t.Fatalf("unexpected outputs: %+v", f.Outputs)
	}
	if len(f.Payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(f.Payloads))
	}

	f.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true})
	f.PublishSystem(SystemEvent{Event: "HEARTBEAT"})
	names := f.SystemEventNames()
	if len(names) != 2 || names[0] != "STARTUP" || names[1] != "HEARTBEAT" {
		t.Errorf("unexpected system events: %v", names)
	}
	if !f.SystemEvents[0].Retained || f.SystemEvents[1].Retained {
		t.Error("retained flag not recorded")
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")
	f.PublishSystemError = errors.New("simulated system error")

	if err := f.PublishLanded(detector.Output{}); err == nil {
		t.Error("expected error")
	}
	if err := f.PublishSystem(SystemEvent{Event: "STARTUP"}); err == nil {
		t.Error("expected system error")
	}
	if len(f.Outputs) != 0 || len(f.SystemEvents) != 0 {
		t.Error("nothing should be recorded on error")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.PublishLanded(detector.Output{})
	f.Close()
	f.Connected = true
	f.PublishError = errors.New("error")

	f.Reset()

	if len(f.Outputs) != 0 || len(f.Payloads) != 0 {
		t.Error("outputs should be cleared")
	}
	if f.Closed || f.Connected || f.PublishError != nil {
		t.Error("flags should be reset")
	}

	if err := f.PublishLanded(detector.Output{}); err != nil {
		t.Errorf("fake should be reusable after reset: %v", err)
	}
}

// fakeToken is a paho.Token that is already complete.
type fakeToken struct{ err error }

func (fakeToken) Wait() bool { return true }
func (fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Error() error { return t.err }

func (fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type sentMsg struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	open         bool
	sent         []sentMsg
	disconnected bool
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMsg{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return fakeToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeClient) setOpen(open bool) {
	c.mu.Lock()
	c.open = open
	c.mu.Unlock()
}

func (c *fakeClient) topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.sent {
		out = append(out, m.topic)
	}
	return out
}

func newTestPublisher(c *fakeClient, capacity int) *RealPublisher {
	return &RealPublisher{
		client: c,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		buf:    newRingBuffer(capacity),
	}
}

func TestRealPublisherSendsWhenConnected(t *testing.T) {
	c := &fakeClient{open: true}
	p := newTestPublisher(c, 8)

	if err := p.PublishLanded(detector.Output{State: detector.StateLanded}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(c.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(c.sent))
	}
	if c.sent[0].topic != Topic || c.sent[0].qos != 0 || !c.sent[0].retained {
		t.Errorf("unexpected state message: %+v", c.sent[0])
	}
	if c.sent[1].topic != TopicSystem || c.sent[1].qos != 1 {
		t.Errorf("unexpected system message: %+v", c.sent[1])
	}
	if !p.IsConnected() {
		t.Error("expected connected")
	}
}

func TestRealPublisherBuffersAndReplays(t *testing.T) {
	c := &fakeClient{}
	p := newTestPublisher(c, 8)

	// First connection: nothing buffered yet
	c.setOpen(true)
	p.handleConnect()

	c.setOpen(false)
	p.PublishLanded(detector.Output{State: detector.StateFlying, TimestampUs: 1})
	p.PublishLanded(detector.Output{State: detector.StateLanded, TimestampUs: 2})
	if len(c.topics()) != 0 {
		t.Fatal("nothing should be sent while disconnected")
	}
	if p.Buffered() != 2 {
		t.Fatalf("expected 2 buffered, got %d", p.Buffered())
	}

	c.setOpen(true)
	p.handleConnect()

	got := c.topics()
	want := []string{Topic, Topic, TopicSystem}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d: got %s, want %s", i, got[i], want[i])
		}
	}

	var first Payload
	if err := json.Unmarshal(c.sent[0].payload, &first); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if first.LandDetector.TimestampUs != 1 {
		t.Errorf("replay should be oldest first, got %d", first.LandDetector.TimestampUs)
	}

	expected := `{"system":{"timestamp":"2026-03-01T12:00:00Z","event":"RECONNECTED"}}`
	if string(c.sent[2].payload) != expected {
		t.Errorf("unexpected reconnect payload: %s", c.sent[2].payload)
	}
	if p.Buffered() != 0 {
		t.Errorf("buffer should be drained, got %d", p.Buffered())
	}
}

func TestRealPublisherFirstConnectIsNotReconnect(t *testing.T) {
	c := &fakeClient{}
	p := newTestPublisher(c, 8)
	p.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true})

	c.setOpen(true)
	p.handleConnect()

	got := c.topics()
	if len(got) != 1 {
		t.Fatalf("expected only the buffered STARTUP, got %v", got)
	}
	if !c.sent[0].retained {
		t.Error("retained flag should survive buffering")
	}
}

func TestRealPublisherBufferOverflowDropsOldest(t *testing.T) {
	c := &fakeClient{}
	p := newTestPublisher(c, 2)

	for i := uint64(1); i <= 4; i++ {
		p.PublishLanded(detector.Output{TimestampUs: i})
	}
	if p.Buffered() != 2 {
		t.Fatalf("expected 2 buffered, got %d", p.Buffered())
	}

	c.setOpen(true)
	p.handleConnect()

	var first Payload
	if err := json.Unmarshal(c.sent[0].payload, &first); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if first.LandDetector.TimestampUs != 3 {
		t.Errorf("expected oldest kept to be 3, got %d", first.LandDetector.TimestampUs)
	}
}

func TestRealPublisherSyncRequiresConnection(t *testing.T) {
	c := &fakeClient{}
	p := newTestPublisher(c, 2)

	if err := p.PublishSystemSync(SystemEvent{Event: "SHUTDOWN"}, time.Second); err == nil {
		t.Error("expected error while disconnected")
	}

	c.setOpen(true)
	if err := p.PublishSystemSync(SystemEvent{Event: "SHUTDOWN"}, time.Second); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(c.sent) != 1 {
		t.Errorf("expected 1 message, got %d", len(c.sent))
	}
}

func TestRealPublisherClose(t *testing.T) {
	c := &fakeClient{}
	p := newTestPublisher(c, 2)
	if err := p.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !c.disconnected {
		t.Error("expected Disconnect to be called")
	}
}
