package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the build metric instruments
type Metrics struct {
	BuildsTotal       metric.Int64Counter
	BuildErrorsTotal  metric.Int64Counter
	BuildDuration     metric.Float64Histogram
	OutputFilesTotal  metric.Int64Counter
	OutputBytesTotal  metric.Int64Counter
	LoaderStepsTotal  metric.Int64Counter
	LoaderErrorsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary.
// Instruments bind to whichever meter provider is global at first use.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	m := &Metrics{}

	m.BuildsTotal, _ = meter.Int64Counter(
		"webbundle.builds.total",
		metric.WithDescription("Total number of builds run"),
		metric.WithUnit("{build}"),
	)

	m.BuildErrorsTotal, _ = meter.Int64Counter(
		"webbundle.builds.errors.total",
		metric.WithDescription("Total number of builds that failed"),
		metric.WithUnit("{build}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"webbundle.builds.duration",
		metric.WithDescription("Duration of builds including emission and plugins"),
		metric.WithUnit("ms"),
	)

	m.OutputFilesTotal, _ = meter.Int64Counter(
		"webbundle.outputs.files.total",
		metric.WithDescription("Total number of files emitted"),
		metric.WithUnit("{file}"),
	)

	m.OutputBytesTotal, _ = meter.Int64Counter(
		"webbundle.outputs.bytes.total",
		metric.WithDescription("Total number of bytes emitted"),
		metric.WithUnit("By"),
	)

	m.LoaderStepsTotal, _ = meter.Int64Counter(
		"webbundle.loaders.files.total",
		metric.WithDescription("Total number of files routed through a loader rule"),
		metric.WithUnit("{file}"),
	)

	m.LoaderErrorsTotal, _ = meter.Int64Counter(
		"webbundle.loaders.errors.total",
		metric.WithDescription("Total number of files a loader pipeline failed on"),
		metric.WithUnit("{file}"),
	)

	return m
}
