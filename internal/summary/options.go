package summary

import (
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/money"
)

// DefaultShippingFee is the shipping fee used when none is configured.
const DefaultShippingFee money.Money = 3000

type options struct {
	shippingFee    money.Money
	logger         *zap.Logger
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	now            func() time.Time
}

// Option configures a Store.
type Option func(*options)

// WithShippingFee sets the fixed shipping fee for the store's lifetime.
func WithShippingFee(fee money.Money) Option {
	return func(o *options) { o.shippingFee = fee }
}

// WithLogger overrides the logger taken from the construction context.
func WithLogger(lg *zap.Logger) Option {
	return func(o *options) { o.logger = lg }
}

// WithMeterProvider sets the meter provider for store metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithTracerProvider sets the tracer provider for collaborator spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithClock sets the time source used to stamp submissions.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}
