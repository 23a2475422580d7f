package territory

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/talgya/frontline/internal/world"
)

const instrumentationName = "github.com/talgya/frontline/internal/territory"

type instruments struct {
	assignments    metric.Int64Counter
	incorporations metric.Int64Counter
}

func newInstruments() instruments {
	m := otel.Meter(instrumentationName)
	return instruments{
		assignments:    counter(m, "frontline.territory.assignments", "Units given expansion, defense or reassignment orders"),
		incorporations: counter(m, "frontline.territory.incorporations", "Tiles brought under control by arriving units"),
	}
}

func counter(m metric.Meter, name, desc string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		c, _ = noop.Meter{}.Int64Counter(name)
	}
	return c
}

func (ins instruments) recordAssignment(region world.RegionID, kind string) {
	ins.assignments.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("region", string(region)),
	))
}

func (ins instruments) recordIncorporation(region world.RegionID) {
	ins.incorporations.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("region", string(region)),
	))
}
