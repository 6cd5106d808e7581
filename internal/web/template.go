package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/pill-dispenser/internal/status"
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
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"rfc3339": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Pill Dispenser</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.warn { color: #b36b00; font-weight: bold; }
.alert { color: red; font-weight: bold; }
</style>
</head>
<body>
<h1>Pill Dispenser</h1>
<table>
<tr><th>State</th><td class="{{.StateClass}}">{{stateOrUnknown .State}}</td></tr>
<tr><th>Indicator</th><td>{{.Indicator}}</td></tr>
<tr><th>Compartment</th><td>{{.Compartment}} / {{.Snap.Config.Compartments}}</td></tr>
<tr><th>Last rotation</th><td>{{rfc3339 .Snap.LastRotationAt}}</td></tr>
<tr><th>Next rotation</th><td>{{rfc3339 .Snap.NextRotationAt}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Snap.Uptime}}</td></tr>
<tr><th>MQTT</th><td>{{if .Snap.MQTTConnected}}<span class="ok">connected</span>{{else}}<span class="alert">disconnected</span>{{end}} ({{.Snap.Config.Broker}})</td></tr>
{{if .Snap.Network}}<tr><th>Network</th><td>{{.Snap.Network.Type}} {{.Snap.Network.IP}} ({{.Snap.Network.Status}})</td></tr>{{end}}
</table>
<h1>Counts</h1>
<table>
<tr><th>Rotations</th><td>{{.Snap.Counts.Rotations}}</td></tr>
<tr><th>Doses taken</th><td>{{.Snap.Counts.DosesTaken}}</td></tr>
<tr><th>Reminders</th><td>{{.Snap.Counts.Reminders}}</td></tr>
<tr><th>No-pills warnings</th><td>{{.Snap.Counts.NoPillsWarnings}}</td></tr>
<tr><th>Sensor faults</th><td>{{.Snap.Counts.SensorFaults}}</td></tr>
</table>
<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

// templateData wraps a Snapshot with presentation helpers.
type templateData struct {
	Snap        status.Snapshot
	State       string
	StateClass  string
	Indicator   string
	Compartment int
}

func renderHTML(w io.Writer, snap status.Snapshot) {
	data := templateData{
		Snap:        snap,
		State:       string(snap.State),
		Compartment: snap.Compartment,
	}

	switch {
	case snap.Flashing:
		data.Indicator = "FLASHING"
	case snap.IndicatorOn:
		data.Indicator = "ON"
	default:
		data.Indicator = "OFF"
	}

	switch snap.State {
	case "NO_PILLS_WARNING":
		data.StateClass = "alert"
	case "REMINDER_ACTIVE":
		data.StateClass = "warn"
	default:
		data.StateClass = "ok"
	}

	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render template: %v", err)
	}
}
