package cache

import (
	"time"

	"github.com/objectfs/imagecache/internal/config"
	"github.com/objectfs/imagecache/internal/metrics"
)

// MetricsRecorder narrows internal/metrics.Collector down to the calls the
// cache core needs, so a nil recorder (metrics disabled) is trivially
// substitutable and so tests can supply a stub.
type MetricsRecorder interface {
	RecordCacheHit(key string, size int64)
	RecordCacheMiss(key string, size int64)
	UpdateCacheSize(level string, size int64)
	RecordError(operation string, err error)
}

// instrumentedFacade wraps a Facade with MetricsRecorder calls around its
// read path, without altering Facade's own semantics. It is kept separate
// from Facade so the core's hit/miss accounting stays optional —
// callers that do not wire a recorder use Facade directly.
type instrumentedFacade struct {
	*Facade
	recorder MetricsRecorder
}

// NewInstrumentedFacade wraps facade with metrics recording via the
// teacher's internal/metrics.Collector, or any MetricsRecorder-shaped
// stand-in.
func NewInstrumentedFacade(facade *Facade, recorder MetricsRecorder) *instrumentedFacade {
	return &instrumentedFacade{Facade: facade, recorder: recorder}
}

// FetchInfo records a cache hit or miss against id before delegating.
func (f *instrumentedFacade) FetchInfo(id Identifier) (Info, bool) {
	info, ok := f.Facade.FetchInfo(id)
	if f.recorder == nil {
		return info, ok
	}
	if ok {
		f.recorder.RecordCacheHit(id.String(), int64(len(info.Attributes)))
	} else {
		f.recorder.RecordCacheMiss(id.String(), 0)
	}
	return info, ok
}

// heapBackendSizeSource adapts HeapBackend.TotalBytes to a single call the
// metrics collector's UpdateCacheSize expects, used by callers that poll
// gauge values on a timer rather than hooking every mutation.
func heapBackendSizeSource(h *HeapBackend) func() int64 {
	return h.TotalBytes
}

var _ MetricsRecorder = (*metrics.Collector)(nil)

// NewMetricsRecorderFromConfig builds the Prometheus-backed MetricsRecorder
// the cache core uses, from the Metrics block (config.MetricsConfig) of the
// application's MonitoringConfig. Returns nil
// (no recorder) when metrics are disabled, so callers can pass the result
// straight into NewInstrumentedFacade without a conditional.
func NewMetricsRecorderFromConfig(cfg config.MetricsConfig) (MetricsRecorder, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:        true,
		Namespace:      "imagecache",
		UpdateInterval: 30 * time.Second,
		Labels:         cfg.CustomLabels,
	})
	if err != nil {
		return nil, err
	}
	return collector, nil
}
