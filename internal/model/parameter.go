// internal/model/parameter.go
package model

import (
	"fmt"
	"sync"
)

// ConfigParameter is one device setting mirrored on the host
type ConfigParameter struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value int    `json:"value"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
}

// Clamp returns v limited to [Min, Max]
func (p ConfigParameter) Clamp(v int) int {
	if v < p.Min {
		return p.Min
	}
	if v > p.Max {
		return p.Max
	}
	return v
}

// InRange reports whether the current value lies within [Min, Max]
func (p ConfigParameter) InRange() bool {
	return p.Value >= p.Min && p.Value <= p.Max
}

// ParameterChange describes one applied update
type ParameterChange struct {
	Key      string `json:"key"`
	Previous int    `json:"previous"`
	Value    int    `json:"value"`
	Clamped  bool   `json:"clamped"`
}

// Changed reports whether the stored value moved
func (c ParameterChange) Changed() bool {
	return c.Previous != c.Value
}

// ParameterSet is the ordered, authoritative mirror of the device configuration.
// Keys are fixed at construction.
type ParameterSet struct {
	order  []string
	params map[string]*ConfigParameter
	mutex  sync.RWMutex
}

// NewParameterSet creates a set from definitions, clamping each initial value
func NewParameterSet(defs []ConfigParameter) *ParameterSet {
	ps := &ParameterSet{
		order:  make([]string, 0, len(defs)),
		params: make(map[string]*ConfigParameter, len(defs)),
	}
	for _, def := range defs {
		p := def
		p.Value = p.Clamp(p.Value)
		ps.order = append(ps.order, p.Key)
		ps.params[p.Key] = &p
	}
	return ps
}

// Keys returns parameter keys in declared order
func (ps *ParameterSet) Keys() []string {
	keys := make([]string, len(ps.order))
	copy(keys, ps.order)
	return keys
}

// Has reports whether key is a known parameter
func (ps *ParameterSet) Has(key string) bool {
	_, ok := ps.params[key]
	return ok
}

// Get returns a copy of the named parameter
func (ps *ParameterSet) Get(key string) (ConfigParameter, bool) {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()

	p, ok := ps.params[key]
	if !ok {
		return ConfigParameter{}, false
	}
	return *p, true
}

// Value returns the current value of key, or 0 if unknown
func (ps *ParameterSet) Value(key string) int {
	p, _ := ps.Get(key)
	return p.Value
}

// Set stores v for key, clamped into range. Out-of-range values are never rejected.
func (ps *ParameterSet) Set(key string, v int) (ParameterChange, error) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	p, ok := ps.params[key]
	if !ok {
		return ParameterChange{}, fmt.Errorf("unknown parameter %q", key)
	}

	clamped := p.Clamp(v)
	change := ParameterChange{
		Key:      key,
		Previous: p.Value,
		Value:    clamped,
		Clamped:  clamped != v,
	}
	p.Value = clamped
	return change, nil
}

// Apply sets every known key in values and returns the changes in declared order.
// Unknown keys are ignored.
func (ps *ParameterSet) Apply(values map[string]int) []ParameterChange {
	changes := make([]ParameterChange, 0, len(values))
	for _, key := range ps.order {
		v, ok := values[key]
		if !ok {
			continue
		}
		change, err := ps.Set(key, v)
		if err != nil {
			continue
		}
		changes = append(changes, change)
	}
	return changes
}

// Snapshot returns copies of all parameters in declared order
func (ps *ParameterSet) Snapshot() []ConfigParameter {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()

	out := make([]ConfigParameter, 0, len(ps.order))
	for _, key := range ps.order {
		out = append(out, *ps.params[key])
	}
	return out
}

// Values returns the current values keyed by parameter key
func (ps *ParameterSet) Values() map[string]int {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()

	out := make(map[string]int, len(ps.params))
	for key, p := range ps.params {
		out[key] = p.Value
	}
	return out
}
