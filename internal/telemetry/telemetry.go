package telemetry

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/acentrix/quotefunnel/internal/core"
)

// Recorder counts funnel milestone events per product line and mirrors them
// into the structured log. Callers own the once-per-session guards; every
// Emit here is assumed deliberate.
type Recorder struct {
	log    *slog.Logger
	events *prometheus.CounterVec
}

func New(log *slog.Logger, reg prometheus.Registerer) *Recorder {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quotefunnel",
		Name:      "funnel_events_total",
		Help:      "Funnel milestone events by product line and event name.",
	}, []string{"line", "event"})
	reg.MustRegister(events)

	return &Recorder{log: log, events: events}
}

// Emit records one milestone event.
func (r *Recorder) Emit(line core.LineCode, event string) {
	r.events.WithLabelValues(string(line), event).Inc()
	r.log.Info("funnel event", "line", line, "event", event)
}
