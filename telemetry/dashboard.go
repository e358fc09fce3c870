package telemetry

import (
	"net/http"

	pongo2 "github.com/flosch/pongo2/v5"

	"planararm/logger"
)

const dashboardTemplate = `<!DOCTYPE html>
<html>
<head><title>arm {{ status.Session }}</title></head>
<body>
<h1>session {{ status.Session|default:"idle" }}</h1>
<table>
<tr><td>ticks</td><td>{{ status.Stats.Ticks }}</td></tr>
<tr><td>written</td><td>{{ status.Stats.Written }}</td></tr>
<tr><td>skipped</td><td>{{ status.Stats.Skipped }} ({{ status.Stats.Unreachable }} unreachable, {{ status.Stats.OutOfRange }} out of range)</td></tr>
<tr><td>clients</td><td>{{ status.Clients }}</td></tr>
<tr><td>dropped</td><td>{{ status.Dropped }}</td></tr>
{% if status.Last %}<tr><td>target</td><td>{{ status.Last.Sample.Point.X|floatformat:2 }}, {{ status.Last.Sample.Point.Y|floatformat:2 }}</td></tr>
<tr><td>angles</td><td>{{ status.Last.Angles.Theta1|floatformat:1 }}, {{ status.Last.Angles.Theta2|floatformat:1 }}</td></tr>
<tr><td>pulses</td><td>{{ pulses.0 }}, {{ pulses.1 }}</td></tr>
{% if status.Last.Skipped %}<tr><td>skipped</td><td>{{ status.Last.Reason }}</td></tr>{% endif %}{% endif %}
{% for joint in sensors %}<tr><td>sensor {{ forloop.Counter0 }}</td><td>{% if joint.Valid %}{{ joint.Angle|floatformat:1 }}{% else %}no reading{% endif %} ({{ joint.Errors }} errors)</td></tr>
{% endfor %}</table>
{% if pose %}<img src="/pose.mjpeg" width="480" height="480">{% endif %}
</body>
</html>
`

var dashboard = pongo2.Must(pongo2.FromString(dashboardTemplate))

func (h *Hub) serveDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	status := h.Status()
	ctx := pongo2.Context{
		"status": status,
		"pose":   h.opts.Workspace != nil,
	}
	if status.Last != nil {
		ctx["pulses"] = status.Last.Pulses[:]
	}
	if status.Sensors != nil {
		ctx["sensors"] = status.Sensors[:]
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboard.ExecuteWriter(ctx, w); err != nil {
		logger.Errorf("dashboard render failed: %v", err)
	}
}
