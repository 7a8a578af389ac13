package telemetry

import (
	"context"
	"slices"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys
const (
	ProfilingLabelController  = "controller"
	ProfilingLabelRoute       = "route"
	ProfilingLabelMethod      = "method"
	ProfilingLabelTenantID    = "tenant_id"
	ProfilingLabelWorker      = "worker"
	ProfilingLabelChannelCode = "channel_code"
)

// MaxLabelValueLength caps profiling label values
const MaxLabelValueLength = 128

// highCardinalityLabels never become profiling labels; every distinct value
// creates a new profile series in Pyroscope
var highCardinalityLabels = map[string]bool{
	"user_id":           true,
	"request_id":        true,
	"relay_id":          true,
	"external_order_id": true,
	"conversion_id":     true,
	"batch_id":          true,
	"trace_id":          true,
	"span_id":           true,
}

// WithProfilingLabels runs fn with pprof labels attached so CPU samples taken
// inside fn can be filtered by them. Empty and high-cardinality labels are
// dropped; with nothing left fn runs unlabelled.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	kv := sanitizeLabels(labels)
	if len(kv) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(kv...), fn)
}

// WorkerLabels labels one background worker run. channelCode is set by
// channel pollers only.
func WorkerLabels(worker, channelCode string) map[string]string {
	labels := map[string]string{ProfilingLabelWorker: worker}
	if channelCode != "" {
		labels[ProfilingLabelChannelCode] = channelCode
	}
	return labels
}

// sanitizeLabels returns alternating key, value pairs sorted by key
func sanitizeLabels(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	kv := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		v := labels[k]
		key := labelKey(k)
		if key == "" || v == "" || highCardinalityLabels[key] {
			continue
		}
		if len(v) > MaxLabelValueLength {
			v = v[:MaxLabelValueLength]
		}
		kv = append(kv, key, v)
	}
	return kv
}

// labelKey lowercases k and keeps only [a-z0-9_], mapping spaces and
// dashes to underscores
func labelKey(k string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(k) {
		switch {
		case r == ' ' || r == '-':
			b.WriteByte('_')
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		}
	}
	return b.String()
}
