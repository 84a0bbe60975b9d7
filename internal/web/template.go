package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/land-detector/internal/detector"
	"github.com/sweeney/land-detector/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateClass": func(s detector.State) string {
		switch s {
		case detector.StateLanded:
			return "landed"
		case detector.StateFreefall:
			return "freefall"
		case detector.StateUnknown:
			return "unknown"
		default:
			return "air"
		}
	},
	"yesno": func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="2">
<title>Land Detector</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.landed { color: green; font-weight: bold; }
.air { color: #06c; }
.freefall { color: red; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Land Detector</h1>

<h2>State</h2>
<table>
<tr><th>State</th><td id="state" class="{{stateClass .Output.State}}">{{.Output.State}}</td></tr>
<tr><th>Ground contact</th><td>{{yesno .Output.GroundContact}}</td></tr>
<tr><th>Maybe landed</th><td>{{yesno .Output.MaybeLanded}}</td></tr>
<tr><th>Landed</th><td>{{yesno .Output.Landed}}</td></tr>
<tr><th>Free-fall</th><td>{{yesno .Output.Freefall}}</td></tr>
<tr><th>Ground effect</th><td>{{yesno .Output.InGroundEffect}}</td></tr>
<tr><th>Ready</th><td>{{yesno .Ready}}</td></tr>
</table>

<h2>Conditions</h2>
<table>
<tr><th>Descending</th><td>{{yesno .Output.InDescend}}</td></tr>
<tr><th>Low throttle</th><td>{{yesno .Output.HasLowThrottle}}</td></tr>
<tr><th>Horizontal movement</th><td>{{yesno .Output.HorizontalMovement}}</td></tr>
<tr><th>Vertical movement</th><td>{{yesno .Output.VerticalMovement}}</td></tr>
<tr><th>Rotation</th><td>{{yesno .Output.RotationalMovement}}</td></tr>
<tr><th>Near ground</th><td>{{yesno .Output.CloseToGroundOrSkippedCheck}}</td></tr>
</table>

<h2>Flights</h2>
<table>
<tr><th>Takeoffs</th><td>{{.Stats.Takeoffs}}</td></tr>
<tr><th>Landings</th><td>{{.Stats.Landings}}</td></tr>
<tr><th>Free-falls</th><td>{{.Stats.Freefalls}}</td></tr>
<tr><th>Flight time</th><td>{{uptime .Stats.FlightTime}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MAVLink</th><td>{{.Config.MAVLink}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Session</th><td>{{.SessionID}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Trigger time</th><td>{{.Params.TrigTime}}</td></tr>
<tr><th>Parameters</th><td>{{.Config.ParamSource}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
