package telemetry

import (
	"sort"

	"github.com/gobwas/glob"
)

// metricRegistry holds one descriptor per metric name. It has no lock of its
// own: the buffer mutex guards it together with the metric buffer.
type metricRegistry struct {
	descriptors map[string]MetricDescriptor
}

func newMetricRegistry() *metricRegistry {
	return &metricRegistry{descriptors: make(map[string]MetricDescriptor)}
}

// ensure auto-registers name as a gauge if it has not been seen.
func (r *metricRegistry) ensure(name string) {
	if _, ok := r.descriptors[name]; ok {
		return
	}
	r.descriptors[name] = MetricDescriptor{
		Name:        name,
		Description: "Auto-registered metric: " + name,
		Unit:        "unspecified",
		Type:        MetricGauge,
	}
}

// register stores d, replacing any auto-registered descriptor.
func (r *metricRegistry) register(d MetricDescriptor) {
	r.descriptors[d.Name] = d
}

// list returns descriptors whose fields equal every filter entry, sorted by
// name. Recognized filter keys: name, description, unit, type (or
// metric_type). An unknown key matches nothing.
func (r *metricRegistry) list(filter map[string]string) []MetricDescriptor {
	out := make([]MetricDescriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		if descriptorMatches(d, filter) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func descriptorMatches(d MetricDescriptor, filter map[string]string) bool {
	for k, want := range filter {
		var got string
		switch k {
		case "name":
			got = d.Name
		case "description":
			got = d.Description
		case "unit":
			got = d.Unit
		case "type", "metric_type":
			got = string(d.Type)
		default:
			return false
		}
		if got != want {
			return false
		}
	}
	return true
}

// metricFilter drops samples whose name matches a deny-list glob.
type metricFilter struct {
	patterns []glob.Glob
}

func newMetricFilter(patterns []string) (*metricFilter, error) {
	f := &metricFilter{}
	for _, p := range patterns {
		g, err := glob.Compile(p, '.')
		if err != nil {
			return nil, err
		}
		f.patterns = append(f.patterns, g)
	}
	return f, nil
}

// drop reports whether name is deny-listed.
func (f *metricFilter) drop(name string) bool {
	if f == nil {
		return false
	}
	for _, g := range f.patterns {
		if g.Match(name) {
			return true
		}
	}
	return false
}
