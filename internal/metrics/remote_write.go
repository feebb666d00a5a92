package metrics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/snappy"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"go.uber.org/zap"

	"github.com/leozw/tenant-gateway/internal/config"
)

// RemoteWriter periodically pushes the collector's samples to a Prometheus
// remote-write endpoint (Mimir).
type RemoteWriter struct {
	collector *Collector
	config    config.MimirConfig
	client    *http.Client
	logger    *zap.Logger
	instance  string
}

func NewRemoteWriter(collector *Collector, cfg config.MimirConfig, instance string, logger *zap.Logger) *RemoteWriter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.TenantHeader == "" {
		cfg.TenantHeader = "X-Scope-OrgID"
	}
	return &RemoteWriter{
		collector: collector,
		config:    cfg,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
		instance:  instance,
	}
}

func (w *RemoteWriter) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.Flush(ctx); err != nil {
				w.logger.Warn("Remote write failed", zap.Error(err))
			}
		}
	}
}

func (w *RemoteWriter) Flush(ctx context.Context) error {
	mfs, err := w.collector.Gatherer().Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	series := w.toTimeSeries(mfs, time.Now())
	if len(series) == 0 {
		return nil
	}

	for i := 0; i < len(series); i += w.config.BatchSize {
		end := min(i+w.config.BatchSize, len(series))
		if err := w.send(ctx, series[i:end]); err != nil {
			return fmt.Errorf("failed to send batch: %w", err)
		}
	}

	return nil
}

func (w *RemoteWriter) toTimeSeries(mfs []*dto.MetricFamily, at time.Time) []prompb.TimeSeries {
	var series []prompb.TimeSeries
	ts := at.UnixMilli()

	for _, mf := range mfs {
		for _, m := range mf.Metric {
			labels := make([]prompb.Label, 0, len(m.Label)+2)
			labels = append(labels,
				prompb.Label{Name: "__name__", Value: mf.GetName()},
				prompb.Label{Name: "instance", Value: w.instance},
			)
			for _, l := range m.Label {
				labels = append(labels, prompb.Label{Name: l.GetName(), Value: l.GetValue()})
			}

			var value float64
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				value = m.Counter.GetValue()
			case dto.MetricType_GAUGE:
				value = m.Gauge.GetValue()
			case dto.MetricType_HISTOGRAM:
				hist := m.Histogram
				for _, bucket := range hist.Bucket {
					bucketLabels := append([]prompb.Label{}, labels...)
					bucketLabels[0].Value = mf.GetName() + "_bucket"
					bucketLabels = append(bucketLabels, prompb.Label{
						Name:  "le",
						Value: fmt.Sprintf("%g", bucket.GetUpperBound()),
					})
					series = append(series, prompb.TimeSeries{
						Labels:  bucketLabels,
						Samples: []prompb.Sample{{Value: float64(bucket.GetCumulativeCount()), Timestamp: ts}},
					})
				}
				countLabels := append([]prompb.Label{}, labels...)
				countLabels[0].Value = mf.GetName() + "_count"
				series = append(series, prompb.TimeSeries{
					Labels:  countLabels,
					Samples: []prompb.Sample{{Value: float64(hist.GetSampleCount()), Timestamp: ts}},
				})
				continue
			default:
				continue
			}

			series = append(series, prompb.TimeSeries{
				Labels:  labels,
				Samples: []prompb.Sample{{Value: value, Timestamp: ts}},
			})
		}
	}

	return series
}

func (w *RemoteWriter) send(ctx context.Context, series []prompb.TimeSeries) error {
	req := &prompb.WriteRequest{Timeseries: series}

	data, err := req.Marshal()
	if err != nil {
		return err
	}

	compressed := snappy.Encode(nil, data)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL+"/api/v1/push", bytes.NewReader(compressed))
	if err != nil {
		return err
	}

	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	httpReq.Header.Set(w.config.TenantHeader, w.config.TenantID)
	if w.config.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+w.config.AuthToken)
	}

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("remote write failed: %s", resp.Status)
	}

	return nil
}
