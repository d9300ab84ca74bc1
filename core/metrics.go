package core

import "context"

const (
	MetricTokenRefreshTotal    = "kick.refresh_token.total"
	MetricPublicKeyFetchTotal  = "kick.fetch_public_key.total"
	MetricRequestTotal         = "kick.request.total"
	MetricRequestDurationMilli = "kick.request.duration_ms"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
