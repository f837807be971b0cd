package telemetry

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys
const (
	ProfilingLabelService   = "service"
	ProfilingLabelOperation = "operation"
)

// MaxLabelValueLength caps label values to keep profile series bounded
const MaxLabelValueLength = 128

// HighCardinalityLabels are dropped from profiling labels. Every entity id
// in the ledger is unbounded.
var HighCardinalityLabels = map[string]bool{
	"order_id":               true,
	"order_line_id":          true,
	"variant_id":             true,
	"stock_id":               true,
	"purchase_order_item_id": true,
	"adjustment_id":          true,
	"request_id":             true,
	"trace_id":               true,
	"span_id":                true,
}

// WithProfilingLabels runs fn with pprof labels attached, so CPU and block
// samples taken inside fn can be filtered by them in Pyroscope. The labels
// are also carried by the context handed to fn.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(maps.Clone(labels))
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// OperationLabels labels one ledger operation of a service
func OperationLabels(service, operation string) map[string]string {
	return map[string]string{
		ProfilingLabelService:   service,
		ProfilingLabelOperation: operation,
	}
}

// sanitizeLabels drops empty and high-cardinality labels, truncates long
// values and returns key/value pairs sorted by key
func sanitizeLabels(labels map[string]string) []string {
	keys := slices.Sorted(maps.Keys(labels))
	pairs := make([]string, 0, len(labels)*2)
	for _, key := range keys {
		value := labels[key]
		if key == "" || value == "" || HighCardinalityLabels[key] {
			continue
		}
		if len(value) > MaxLabelValueLength {
			value = value[:MaxLabelValueLength]
		}
		if key = sanitizeLabelKey(key); key == "" {
			continue
		}
		pairs = append(pairs, key, value)
	}
	return pairs
}

// sanitizeLabelKey lowercases the key and keeps only [a-z0-9_]
func sanitizeLabelKey(key string) string {
	key = strings.ToLower(key)
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return -1
	}, key)
}
