// Package telemetry owns the process meter provider and exposes collected
// instrument values as plain points.
package telemetry

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Meters is an SDK meter provider read on demand.
type Meters struct {
	Provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader
}

// NewMeters builds a provider backed by a manual reader. With global set it
// also becomes the otel global provider.
func NewMeters(global bool) *Meters {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	if global {
		otel.SetMeterProvider(mp)
	}
	return &Meters{Provider: mp, reader: reader}
}

func (m *Meters) Shutdown(ctx context.Context) error {
	return m.Provider.Shutdown(ctx)
}

// Point is one timeseries value. Histograms report their observation count
// as Value and the observed total as Sum.
type Point struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Value      float64           `json:"value"`
	Sum        float64           `json:"sum,omitempty"`
}

// Collect reads the current cumulative values, sorted by name.
func (m *Meters) Collect(ctx context.Context) ([]Point, error) {
	var rm metricdata.ResourceMetrics
	if err := m.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	var points []Point
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			switch data := metric.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					points = append(points, Point{Name: metric.Name, Attributes: attrs(dp.Attributes.ToSlice()), Value: float64(dp.Value)})
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					points = append(points, Point{Name: metric.Name, Attributes: attrs(dp.Attributes.ToSlice()), Value: dp.Value})
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					points = append(points, Point{Name: metric.Name, Attributes: attrs(dp.Attributes.ToSlice()), Value: float64(dp.Count), Sum: dp.Sum})
				}
			}
		}
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Name < points[j].Name })
	return points, nil
}

// Value sums every point of name whose attributes include match.
func Value(points []Point, name string, match map[string]string) float64 {
	var total float64
next:
	for _, p := range points {
		if p.Name != name {
			continue
		}
		for k, v := range match {
			if p.Attributes[k] != v {
				continue next
			}
		}
		total += p.Value
	}
	return total
}

func attrs(kvs []attribute.KeyValue) map[string]string {
	if len(kvs) == 0 {
		return nil
	}
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}
