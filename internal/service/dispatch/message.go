package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/trendlens/admin-api/internal/model"
)

var alertHeadlines = map[model.AlertType]string{
	model.AlertTypeEarlyBreakout:      "🚀 Early Breakout",
	model.AlertTypeStrongAcceleration: "📈 Strong Acceleration",
	model.AlertTypeTrendReversal:      "⚠️ Trend Reversal",
	model.AlertTypeTest:               "🔔 Test Alert",
}

// FormatAlert renders the subscriber-facing message for one alert. The
// layout is stable across types so readers can scan a channel quickly; only
// the headline and the trend line vary.
func FormatAlert(alert *model.AlertEvent) string {
	headline, ok := alertHeadlines[alert.Type]
	if !ok {
		headline = string(alert.Type)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: @%s\n\n", headline, alert.Username)
	fmt.Fprintf(&b, "Influence score: %.1f\n", alert.Metrics.InfluenceScore)
	fmt.Fprintf(&b, "Velocity: %+.2f\n", alert.Metrics.Velocity)
	fmt.Fprintf(&b, "Acceleration: %+.2f\n", alert.Metrics.Acceleration)
	fmt.Fprintf(&b, "Risk: %.2f\n", alert.Metrics.Risk)
	if alert.Metrics.TrendState != "" {
		fmt.Fprintf(&b, "Trend: %s\n", strings.ToLower(alert.Metrics.TrendState))
	}
	fmt.Fprintf(&b, "Severity: %.2f", alert.Severity)
	return b.String()
}

// FormatTestMessage renders the synthetic message sent by the connection
// test endpoint.
func FormatTestMessage(now time.Time) string {
	return fmt.Sprintf("🔔 Test Alert\n\nDelivery pipeline is reachable.\nSent at %s.",
		now.UTC().Format(time.RFC3339))
}
