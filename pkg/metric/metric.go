// Copyright 2026 The gVisor Authors.
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

// Package metric provides primitives for collecting metrics.
package metric

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	// ErrNameInUse indicates that another metric is already defined for
	// the given name.
	ErrNameInUse = errors.New("metric name already in use")

	// ErrInitializationDone indicates that the caller tried to create a
	// new metric after initialization.
	ErrInitializationDone = errors.New("metric cannot be created after initialization is complete")
)

// Uint64Metric encapsulates a uint64 that represents some kind of metric to be
// monitored.
type Uint64Metric struct {
	name        string
	description string
	value       atomic.Uint64
}

// registry holds every metric created by this package.
var registry = struct {
	mu          sync.Mutex
	initialized bool
	metrics     map[string]*Uint64Metric
}{
	metrics: make(map[string]*Uint64Metric),
}

// NewUint64Metric creates and registers a new cumulative metric with the
// given name.
//
// Metrics must be statically defined (i.e., at init).
func NewUint64Metric(name, description string) (*Uint64Metric, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if registry.initialized {
		return nil, ErrInitializationDone
	}
	if _, ok := registry.metrics[name]; ok {
		return nil, ErrNameInUse
	}
	m := &Uint64Metric{name: name, description: description}
	registry.metrics[name] = m
	return m, nil
}

// MustCreateNewUint64Metric calls NewUint64Metric and panics if it returns
// an error.
func MustCreateNewUint64Metric(name, description string) *Uint64Metric {
	m, err := NewUint64Metric(name, description)
	if err != nil {
		panic(fmt.Sprintf("Unable to create metric %q: %s", name, err))
	}
	return m
}

// Name returns the metric name.
func (m *Uint64Metric) Name() string {
	return m.name
}

// Value returns the current value of the metric.
func (m *Uint64Metric) Value() uint64 {
	return m.value.Load()
}

// Increment increments the metric by 1.
func (m *Uint64Metric) Increment() {
	m.value.Add(1)
}

// IncrementBy increments the metric by v.
func (m *Uint64Metric) IncrementBy(v uint64) {
	m.value.Add(v)
}

// Initialize freezes the set of metrics. Creating metrics afterwards fails
// with ErrInitializationDone.
func Initialize() {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.initialized = true
}

// Sample is the value of one metric at the time of a Snapshot.
type Sample struct {
	Name        string
	Description string
	Value       uint64
}

// Snapshot returns the current value of every registered metric, sorted by
// name.
func Snapshot() []Sample {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	s := make([]Sample, 0, len(registry.metrics))
	for _, m := range registry.metrics {
		s = append(s, Sample{Name: m.name, Description: m.description, Value: m.Value()})
	}
	sort.Slice(s, func(i, j int) bool { return s[i].Name < s[j].Name })
	return s
}
