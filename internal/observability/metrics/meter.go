// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps the OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a meter from the global meter provider. A disabled config
// yields the no-op meter.
func New(_ context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{meter: otel.Meter("noop")}, nil
	}
	return &Meter{meter: otel.Meter(serviceName)}, nil
}

// GetMeter returns the underlying meter
func (m *Meter) GetMeter() metric.Meter {
	return m.meter
}

// CreateCounter creates a new counter metric
func (m *Meter) CreateCounter(name, description string) (metric.Int64Counter, error) {
	counter, err := m.meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return counter, nil
}

// CreateHistogram creates a new histogram metric
func (m *Meter) CreateHistogram(name, description, unit string) (metric.Float64Histogram, error) {
	histogram, err := m.meter.Float64Histogram(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	return histogram, nil
}

// CreateUpDownCounter creates a new up/down counter metric
func (m *Meter) CreateUpDownCounter(name, description string) (metric.Int64UpDownCounter, error) {
	counter, err := m.meter.Int64UpDownCounter(name, metric.WithDescription(description))
	if err != nil {
		return nil, fmt.Errorf("failed to create up/down counter %s: %w", name, err)
	}
	return counter, nil
}

// Provisioning holds the instruments recorded by tenant provisioning
type Provisioning struct {
	runs     metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

// NewProvisioning registers the provisioning instruments on m
func NewProvisioning(m *Meter) (*Provisioning, error) {
	runs, err := m.CreateCounter("tenancy.provisioning.runs", "Tenant provisioning runs by result")
	if err != nil {
		return nil, err
	}
	failures, err := m.CreateCounter("tenancy.provisioning.failures", "Tenant provisioning failures by step")
	if err != nil {
		return nil, err
	}
	duration, err := m.CreateHistogram("tenancy.provisioning.duration", "Tenant provisioning duration", "s")
	if err != nil {
		return nil, err
	}
	inFlight, err := m.CreateUpDownCounter("tenancy.provisioning.in_flight", "Tenant provisioning runs in progress")
	if err != nil {
		return nil, err
	}
	return &Provisioning{runs: runs, failures: failures, duration: duration, inFlight: inFlight}, nil
}

// NoopProvisioning returns instruments backed by the no-op meter
func NoopProvisioning() *Provisioning {
	p, _ := NewProvisioning(&Meter{meter: otel.Meter("noop")})
	return p
}

// Started marks a run as in progress
func (p *Provisioning) Started(ctx context.Context) {
	p.inFlight.Add(ctx, 1)
}

// Finished records the outcome of a run. step is empty on success.
func (p *Provisioning) Finished(ctx context.Context, elapsed time.Duration, step string) {
	p.inFlight.Add(ctx, -1)

	result := "success"
	if step != "" {
		result = "failure"
		p.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step)))
	}
	attrs := metric.WithAttributes(attribute.String("result", result))
	p.runs.Add(ctx, 1, attrs)
	p.duration.Record(ctx, elapsed.Seconds(), attrs)
}
