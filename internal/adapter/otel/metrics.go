package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "forgeagent"

// Metrics holds the agent metric instruments.
type Metrics struct {
	RunsStarted   metric.Int64Counter
	RunsCompleted metric.Int64Counter
	ToolCalls     metric.Int64Counter
	TurnDuration  metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RunsStarted, err = meter.Int64Counter("forgeagent.runs.started",
		metric.WithDescription("Number of runs started"))
	if err != nil {
		return nil, err
	}

	m.RunsCompleted, err = meter.Int64Counter("forgeagent.runs.completed",
		metric.WithDescription("Number of runs completed"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("forgeagent.toolcalls",
		metric.WithDescription("Number of tool calls executed"))
	if err != nil {
		return nil, err
	}

	m.TurnDuration, err = meter.Float64Histogram("forgeagent.turn.duration_seconds",
		metric.WithDescription("Model turn duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
