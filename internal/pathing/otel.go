package pathing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/talgya/frontline/internal/pathing"

// instruments are resolved from the global meter provider, which is a no-op
// until the process installs one.
type instruments struct {
	searches   metric.Int64Counter
	expansions metric.Int64Counter
	repairs    metric.Int64Counter
}

func newInstruments() instruments {
	m := otel.Meter(instrumentationName)
	return instruments{
		searches:   counter(m, "frontline.pathing.searches", "Path searches started"),
		expansions: counter(m, "frontline.pathing.expansions", "Nodes expanded across all searches"),
		repairs:    counter(m, "frontline.pathing.repairs", "Incremental planner tile-change repairs"),
	}
}

func counter(m metric.Meter, name, desc string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		c, _ = noop.Meter{}.Int64Counter(name)
	}
	return c
}

func (ins instruments) recordSearch(algorithm string, expanded int) {
	attrs := metric.WithAttributes(attribute.String("algorithm", algorithm))
	ins.searches.Add(context.Background(), 1, attrs)
	ins.expansions.Add(context.Background(), int64(expanded), attrs)
}

func (ins instruments) recordRepair() {
	ins.repairs.Add(context.Background(), 1)
}
