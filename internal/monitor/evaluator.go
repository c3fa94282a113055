package monitor

import (
	"time"

	"github.com/shopspring/decimal"

	"feedwatch/internal/calendar"
	"feedwatch/internal/registry"
)

var hundred = decimal.NewFromInt(100)

// Evaluate computes the status verdict for one feed and COB date. It is
// deterministic and performs no I/O; source-lookup failures are mapped
// to a failed verdict by the sweep wrapper, not here.
//
// Rules, in order:
//  1. A weekend or holiday COB date for a feed that is not expected on
//     those days is received by definition, whatever the count.
//  2. Zero records on an expected day is missing.
//  3. A count below the configured minimum is partial.
//  4. An observation outside the expected arrival window is delayed.
//  5. Otherwise received.
func Evaluate(feed registry.Feed, cobDate time.Time, count int64, observedAt time.Time, cal *calendar.Calendar) Verdict {
	verdict := EvaluateCount(feed, cobDate, count, cal)
	if verdict != VerdictReceived {
		return verdict
	}

	excludedDay := !cal.IsBusinessDay(cobDate) && !feed.WeekendExpected
	if !excludedDay && !cal.WithinTolerance(feed.ExpectedTime, feed.Tolerance, observedAt) {
		return VerdictDelayed
	}

	return VerdictReceived
}

// EvaluateCount applies only the volume rules (1-3 and 5), without the
// arrival-window check. Used for historical dates where the observation
// time carries no timing signal.
func EvaluateCount(feed registry.Feed, cobDate time.Time, count int64, cal *calendar.Calendar) Verdict {
	if !cal.IsBusinessDay(cobDate) && !feed.WeekendExpected {
		return VerdictReceived
	}

	if count == 0 {
		return VerdictMissing
	}

	if feed.MinRecords > 0 && count < feed.MinRecords {
		return VerdictPartial
	}

	return VerdictReceived
}

// Completeness expresses the observed count against the configured
// minimum as a percentage, capped at 100. A feed without a minimum is
// always complete.
func Completeness(count, minRecords int64) decimal.Decimal {
	if minRecords <= 0 {
		return hundred
	}
	if count <= 0 {
		return decimal.Zero
	}

	pct := decimal.NewFromInt(count).Div(decimal.NewFromInt(minRecords)).Mul(hundred)
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct.Round(2)
}
