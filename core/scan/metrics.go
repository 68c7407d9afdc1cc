package scan

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// scanMetrics bundles the instruments a scan reports to. A nil meter from
// the caller degrades to no-op instruments, so the scanner never has to
// check whether telemetry is enabled.
type scanMetrics struct {
	pagesScanned    metric.Int64Counter
	pagesCorrupted  metric.Int64Counter
	filesScanned    metric.Int64Counter
	filesUnreadable metric.Int64Counter
	scanDuration    metric.Float64Histogram
}

func newScanMetrics(meter metric.Meter) (*scanMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}

	pagesScanned, err := meter.Int64Counter("pgverify.pages.scanned",
		metric.WithDescription("Full pages read and classified"))
	if err != nil {
		return nil, err
	}
	pagesCorrupted, err := meter.Int64Counter("pgverify.pages.corrupted",
		metric.WithDescription("Pages counted as corrupted or unreadable"))
	if err != nil {
		return nil, err
	}
	filesScanned, err := meter.Int64Counter("pgverify.files.scanned",
		metric.WithDescription("Segment files opened and scanned"))
	if err != nil {
		return nil, err
	}
	filesUnreadable, err := meter.Int64Counter("pgverify.files.unreadable",
		metric.WithDescription("Segment files that could not be opened"))
	if err != nil {
		return nil, err
	}
	scanDuration, err := meter.Float64Histogram("pgverify.scan.duration",
		metric.WithDescription("Wall-clock duration of a full scan"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &scanMetrics{
		pagesScanned:    pagesScanned,
		pagesCorrupted:  pagesCorrupted,
		filesScanned:    filesScanned,
		filesUnreadable: filesUnreadable,
		scanDuration:    scanDuration,
	}, nil
}
