package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string       `json:"event,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	SessionID      string       `json:"session_id"`
	State          string       `json:"state"`
	Landed         bool         `json:"landed"`
	MaybeLanded    bool         `json:"maybe_landed"`
	GroundContact  bool         `json:"ground_contact"`
	Freefall       bool         `json:"freefall"`
	InGroundEffect bool         `json:"in_ground_effect"`
	Ready          bool         `json:"ready"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	StartTime      string       `json:"start_time"`
	Timestamp      string       `json:"timestamp"`
	MQTT           MQTTStatus   `json:"mqtt"`
	Stats          StatsJSON    `json:"stats"`
	Params         ParamsJSON   `json:"params"`
	Network        *NetworkJSON `json:"network,omitempty"`
	Config         ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// StatsJSON is the JSON representation of flight statistics.
type StatsJSON struct {
	Takeoffs          int   `json:"takeoffs"`
	Landings          int   `json:"landings"`
	Freefalls         int   `json:"freefalls"`
	FlightTimeSeconds int64 `json:"flight_time_seconds"`
}

// ParamsJSON is the JSON representation of the detector parameters in use.
type ParamsJSON struct {
	MinThrottle            float32 `json:"min_throttle"`
	HoverThrottle          float32 `json:"hover_throttle"`
	MinManThrottle         float32 `json:"min_man_throttle"`
	UseHoverThrustEstimate bool    `json:"use_hover_thrust_estimate"`
	HoverThrustFactor      float32 `json:"hover_thrust_factor"`
	LandSpeed              float32 `json:"land_speed"`
	CrawlSpeed             float32 `json:"crawl_speed"`
	TrigTimeMs             int64   `json:"trig_time_ms"`
	RotMax                 float32 `json:"rot_max"`
	XYVelMax               float32 `json:"xy_vel_max"`
	ZVelMax                float32 `json:"z_vel_max"`
	AltGndEffect           float32 `json:"alt_gnd_effect"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs            int64  `json:"tick_ms"`
	PublishIntervalMs int64  `json:"publish_interval_ms"`
	HeartbeatMs       int64  `json:"heartbeat_ms"`
	MAVLink           string `json:"mavlink"`
	Broker            string `json:"broker"`
	ParamSource       string `json:"param_source"`
	HTTPAddr          string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	out := snap.Output
	p := snap.Params

	inner := StatusInner{
		SessionID:      snap.SessionID,
		State:          out.State.String(),
		Landed:         out.Landed,
		MaybeLanded:    out.MaybeLanded,
		GroundContact:  out.GroundContact,
		Freefall:       out.Freefall,
		InGroundEffect: out.InGroundEffect,
		Ready:          snap.Ready,
		UptimeSeconds:  int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:      snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:      snap.Now.UTC().Format(time.RFC3339),
		MQTT:           MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Stats: StatsJSON{
			Takeoffs:          snap.Stats.Takeoffs,
			Landings:          snap.Stats.Landings,
			Freefalls:         snap.Stats.Freefalls,
			FlightTimeSeconds: int64(snap.Stats.FlightTime.Truncate(time.Second).Seconds()),
		},
		Params: ParamsJSON{
			MinThrottle:            p.MinThrottle,
			HoverThrottle:          p.HoverThrottle,
			MinManThrottle:         p.MinManThrottle,
			UseHoverThrustEstimate: p.UseHoverThrustEstimate,
			HoverThrustFactor:      p.HoverThrustFactor,
			LandSpeed:              p.LandSpeed,
			CrawlSpeed:             p.CrawlSpeed,
			TrigTimeMs:             p.TrigTime.Milliseconds(),
			RotMax:                 p.RotMax,
			XYVelMax:               p.XYVelMax,
			ZVelMax:                p.ZVelMax,
			AltGndEffect:           p.AltGndEffect,
		},
		Config: ConfigJSON{
			TickMs:            snap.Config.TickMs,
			PublishIntervalMs: snap.Config.PublishIntervalMs,
			HeartbeatMs:       snap.Config.HeartbeatMs,
			MAVLink:           snap.Config.MAVLink,
			Broker:            snap.Config.Broker,
			ParamSource:       snap.Config.ParamSource,
			HTTPAddr:          snap.Config.HTTPAddr,
		},
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
