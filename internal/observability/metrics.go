// Package observability emits client metrics through the global otel meter.
// The host process decides whether a provider with an exporter is installed;
// without one these calls are no-ops.
package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "medihub-go"

type clientMetrics struct {
	reissueCounter metric.Int64Counter
	connectCounter metric.Int64Counter
	messageCounter metric.Int64Counter
}

var (
	metricsOnce sync.Once
	appMetrics  *clientMetrics
)

func load() *clientMetrics {
	metricsOnce.Do(func() {
		meter := otel.Meter(meterName)
		m := &clientMetrics{}
		var err error
		if m.reissueCounter, err = meter.Int64Counter("session.reissue.events"); err != nil {
			return
		}
		if m.connectCounter, err = meter.Int64Counter("realtime.connect.events"); err != nil {
			return
		}
		if m.messageCounter, err = meter.Int64Counter("realtime.messages.received"); err != nil {
			return
		}
		appMetrics = m
	})
	return appMetrics
}

func RecordReissue(ctx context.Context, outcome string) {
	if m := load(); m != nil {
		m.reissueCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func RecordConnect(ctx context.Context, outcome string) {
	if m := load(); m != nil {
		m.connectCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func RecordMessage(ctx context.Context, msgType string) {
	if m := load(); m != nil {
		m.messageCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("type", msgType)))
	}
}
