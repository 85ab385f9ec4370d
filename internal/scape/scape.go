package scape

import (
	"context"
	"fmt"
	"strings"

	"github.com/elliotchance/orderedmap/v2"
)

type Fitness float64

// Trace keeps evaluation details in insertion order so reports print stably.
type Trace = *orderedmap.OrderedMap[string, any]

func NewTrace() Trace {
	return orderedmap.NewOrderedMap[string, any]()
}

// FormatTrace renders a trace as space separated key=value pairs in
// insertion order.
func FormatTrace(trace Trace) string {
	if trace == nil {
		return ""
	}
	parts := make([]string, 0, trace.Len())
	for _, key := range trace.Keys() {
		value, _ := trace.Get(key)
		switch v := value.(type) {
		case float64:
			parts = append(parts, fmt.Sprintf("%s=%.4f", key, v))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", key, v))
		}
	}
	return strings.Join(parts, " ")
}

type Scape interface {
	Name() string
	Evaluate(ctx context.Context, seed int64) (Fitness, Trace, error)
}

// Source supplies uniform values in [0, 1). *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

func uniform(src Source, lo, hi float64) float64 {
	return lo + src.Float64()*(hi-lo)
}
