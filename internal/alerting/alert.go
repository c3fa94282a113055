package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"feedwatch/internal/monitor"
)

// Alert is the channel-agnostic notification payload for one status
// determination. Formatting is each channel's responsibility.
type Alert struct {
	FeedName        string
	COBDate         time.Time
	Verdict         monitor.Verdict
	RecordCount     int64
	CompletenessPct decimal.Decimal
	ExpectedTime    string
	ObservedAt      time.Time
	Error           string
}

// Channel delivers alerts through one transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
}

func renderMessage(alert Alert) string {
	builder := strings.Builder{}
	builder.WriteString("[Feed Monitor Alert]\n")
	builder.WriteString(fmt.Sprintf("Feed: %s\n", alert.FeedName))
	builder.WriteString(fmt.Sprintf("Status: %s\n", strings.ToUpper(alert.Verdict.String())))
	builder.WriteString(fmt.Sprintf("COB Date: %s\n", alert.COBDate.Format("2006-01-02")))
	builder.WriteString(fmt.Sprintf("Records: %d (%s%% of minimum)\n", alert.RecordCount, alert.CompletenessPct.StringFixed(1)))
	if alert.ExpectedTime != "" {
		builder.WriteString(fmt.Sprintf("Expected: %s\n", alert.ExpectedTime))
	}
	builder.WriteString(fmt.Sprintf("Checked: %s\n", alert.ObservedAt.UTC().Format(time.RFC3339)))
	if alert.Error != "" {
		builder.WriteString(fmt.Sprintf("Error: %s\n", alert.Error))
	}
	return builder.String()
}
