package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Checks exposes liveness and readiness endpoints. A nil Pinger (in-memory
// store) makes readiness unconditional.
type Checks struct {
	log       *slog.Logger
	pinger    Pinger
	opTimeout time.Duration
}

func New(log *slog.Logger, p Pinger, opTimeout time.Duration) *Checks {
	return &Checks{log: log, pinger: p, opTimeout: opTimeout}
}

// Live reports that the process is up.
func (c *Checks) Live(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports whether the session store is reachable.
func (c *Checks) Ready(w http.ResponseWriter, r *http.Request) {
	if c.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), c.opTimeout)
		defer cancel()

		if err := c.pinger.Ping(ctx); err != nil {
			if c.log != nil {
				c.log.Warn("readiness failed", "err", err)
			}
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
