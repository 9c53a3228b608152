package versioning

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/thebtf/promptvault/internal/versioning"

// Metrics counts version lifecycle outcomes. Without a configured meter
// provider the counters are no-ops.
type Metrics struct {
	created      metric.Int64Counter
	deduplicated metric.Int64Counter
	rolledBack   metric.Int64Counter
	deleted      metric.Int64Counter
}

// NewMetrics registers the counters on the global meter provider.
func NewMetrics() *Metrics {
	meter := otel.Meter(meterName)
	return &Metrics{
		created:      counter(meter, "promptvault.versions.created", "Versions recorded"),
		deduplicated: counter(meter, "promptvault.versions.deduplicated", "Saves that requested a version but changed no content"),
		rolledBack:   counter(meter, "promptvault.versions.rolled_back", "Rollbacks to an earlier version"),
		deleted:      counter(meter, "promptvault.versions.deleted", "Versions soft-deleted"),
	}
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{version}"))
	if err != nil {
		log.Warn().Err(err).Str("counter", name).Msg("Failed to register counter")
	}
	return c
}

func add(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Created counts a new version of the given change type.
func (m *Metrics) Created(ctx context.Context, changeType string) {
	add(ctx, m.created, attribute.String("change_type", changeType))
}

// Deduplicated counts a save whose content fingerprint did not change.
func (m *Metrics) Deduplicated(ctx context.Context) {
	add(ctx, m.deduplicated)
}

// RolledBack counts a rollback.
func (m *Metrics) RolledBack(ctx context.Context) {
	add(ctx, m.rolledBack)
}

// Deleted counts a soft-deleted version.
func (m *Metrics) Deleted(ctx context.Context) {
	add(ctx, m.deleted)
}
