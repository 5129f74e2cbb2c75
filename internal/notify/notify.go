// Package notify delivers fired alerts to operator channels outside the
// HTTP event stream: the process log, and optionally an MQTT topic for
// fleet-wide collection.
package notify

import (
	"github.com/kestrel-sense/driverwatch/internal/engine"
	"github.com/kestrel-sense/driverwatch/internal/monitoring"
)

// LogNotifier writes each alert to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(ev engine.AlertEvent) {
	monitoring.Logf("ALERT [%s] score=%.3f at=%s", ev.Cause, ev.Score, ev.At.Format("15:04:05.000"))
}
