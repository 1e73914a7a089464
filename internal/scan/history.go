package scan

import (
	"fmt"
	"sort"
)

// History is the per-epoch metric series a training function returns,
// ordered by first insertion.
type History struct {
	names  []string
	series map[string][]float64
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{series: make(map[string][]float64)}
}

// HistoryFromMap builds a history with metrics in sorted name order.
func HistoryFromMap(m map[string][]float64) *History {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	h := NewHistory()
	for _, k := range names {
		h.Add(k, m[k]...)
	}
	return h
}

// Add appends values to the named series, creating it if needed.
func (h *History) Add(name string, values ...float64) *History {
	if _, ok := h.series[name]; !ok {
		h.names = append(h.names, name)
		h.series[name] = nil
	}
	h.series[name] = append(h.series[name], values...)
	return h
}

// Names returns the metric names in insertion order.
func (h *History) Names() []string { return append([]string(nil), h.names...) }

// Series returns the named series, or nil.
func (h *History) Series(name string) []float64 { return h.series[name] }

// Len is the number of metrics.
func (h *History) Len() int { return len(h.names) }

// Epochs validates the history and returns the common series length.
func (h *History) Epochs() (int, error) {
	if h == nil || len(h.names) == 0 {
		return 0, fmt.Errorf("%w: no metrics", ErrEmptyHistory)
	}
	epochs := len(h.series[h.names[0]])
	for _, name := range h.names {
		n := len(h.series[name])
		if n == 0 {
			return 0, fmt.Errorf("%w: metric %q has no epochs", ErrEmptyHistory, name)
		}
		if n != epochs {
			return 0, fmt.Errorf("%w: metric %q has %d epochs, %q has %d", ErrEmptyHistory, name, n, h.names[0], epochs)
		}
	}
	return epochs, nil
}
