package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for provider operations.
type Observer interface {
	RecordUpload(duration time.Duration, sizeBytes uint64, err error)
	RecordReplace(duration time.Duration, sizeBytes uint64, err error)
	RecordDownload(duration time.Duration, err error)
	RecordDelete(duration time.Duration, err error)
}

// PrometheusObserver exports provider metrics to Prometheus.
type PrometheusObserver struct {
	duration     *prometheus.HistogramVec
	errors       *prometheus.CounterVec
	writtenBytes prometheus.Counter
}

// NewPrometheusObserver registers storage metrics on reg. Registering twice
// reuses the existing collectors.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "assetd_storage"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency for storage provider operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Count of storage provider failures.",
		}, []string{"operation"}),
		writtenBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "written_bytes_total",
			Help:      "Cumulative payload size successfully written to storage.",
		}),
	}
	if err := reg.Register(o.duration); err != nil {
		existing, ok := alreadyRegistered[*prometheus.HistogramVec](err)
		if !ok {
			return nil, fmt.Errorf("register storage histogram: %w", err)
		}
		o.duration = existing
	}
	if err := reg.Register(o.errors); err != nil {
		existing, ok := alreadyRegistered[*prometheus.CounterVec](err)
		if !ok {
			return nil, fmt.Errorf("register storage error counter: %w", err)
		}
		o.errors = existing
	}
	if err := reg.Register(o.writtenBytes); err != nil {
		existing, ok := alreadyRegistered[prometheus.Counter](err)
		if !ok {
			return nil, fmt.Errorf("register written bytes counter: %w", err)
		}
		o.writtenBytes = existing
	}
	return o, nil
}

func alreadyRegistered[T prometheus.Collector](err error) (T, bool) {
	var zero T
	are, ok := err.(prometheus.AlreadyRegisteredError)
	if !ok {
		return zero, false
	}
	existing, ok := are.ExistingCollector.(T)
	return existing, ok
}

func (o *PrometheusObserver) RecordUpload(duration time.Duration, sizeBytes uint64, err error) {
	o.recordWrite("upload", duration, sizeBytes, err)
}

func (o *PrometheusObserver) RecordReplace(duration time.Duration, sizeBytes uint64, err error) {
	o.recordWrite("replace", duration, sizeBytes, err)
}

func (o *PrometheusObserver) RecordDownload(duration time.Duration, err error) {
	o.record("download", duration, err)
}

func (o *PrometheusObserver) RecordDelete(duration time.Duration, err error) {
	o.record("delete", duration, err)
}

func (o *PrometheusObserver) recordWrite(op string, duration time.Duration, sizeBytes uint64, err error) {
	if o == nil {
		return
	}
	o.record(op, duration, err)
	if err == nil {
		o.writtenBytes.Add(float64(sizeBytes))
	}
}

func (o *PrometheusObserver) record(op string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		o.errors.WithLabelValues(op).Inc()
	}
}

type nopObserver struct{}

func (nopObserver) RecordUpload(time.Duration, uint64, error) {}

func (nopObserver) RecordReplace(time.Duration, uint64, error) {}

func (nopObserver) RecordDownload(time.Duration, error) {}

func (nopObserver) RecordDelete(time.Duration, error) {}

// InstrumentedProvider reports every call on the delegate to an Observer.
type InstrumentedProvider struct {
	delegate Provider
	observer Observer
}

// NewInstrumentedProvider wraps delegate. A nil observer records nothing.
func NewInstrumentedProvider(delegate Provider, observer Observer) *InstrumentedProvider {
	if observer == nil {
		observer = nopObserver{}
	}
	return &InstrumentedProvider{delegate: delegate, observer: observer}
}

func (p *InstrumentedProvider) Tag() ProviderTag {
	return p.delegate.Tag()
}

func (p *InstrumentedProvider) Upload(ctx context.Context, data []byte) (string, error) {
	start := time.Now()
	path, err := p.delegate.Upload(ctx, data)
	p.observer.RecordUpload(time.Since(start), uint64(len(data)), err)
	return path, err
}

func (p *InstrumentedProvider) Replace(ctx context.Context, path string, data []byte) error {
	start := time.Now()
	err := p.delegate.Replace(ctx, path, data)
	p.observer.RecordReplace(time.Since(start), uint64(len(data)), err)
	return err
}

func (p *InstrumentedProvider) Download(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()
	data, err := p.delegate.Download(ctx, path)
	p.observer.RecordDownload(time.Since(start), err)
	return data, err
}

func (p *InstrumentedProvider) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := p.delegate.Delete(ctx, path)
	p.observer.RecordDelete(time.Since(start), err)
	return err
}

var (
	_ Observer = (*PrometheusObserver)(nil)
	_ Provider = (*InstrumentedProvider)(nil)
)
