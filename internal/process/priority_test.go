package process

import (
	"context"
	"testing"
	"time"

	"alarming/internal/domain"
)

func TestPriorityCalculatorFreshAlarmsKeepSeverity(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)
	calculator := NewPriorityCalculator(func() time.Time { return now })

	for _, severity := range []domain.Severity{
		domain.SeverityCritical,
		domain.SeverityHigh,
		domain.SeverityMedium,
		domain.SeverityWarning,
		domain.SeverityLow,
		domain.SeverityInfo,
		domain.SeverityUnknown,
	} {
		alarm := domain.Alarm{Severity: severity, OccurredAt: now}
		if err := calculator.Process(context.Background(), &alarm); err != nil {
			t.Fatalf("process %s: %v", severity, err)
		}
		if alarm.Severity != severity {
			t.Fatalf("fresh %s alarm must keep severity, got %s", severity, alarm.Severity)
		}
	}
}

func TestPriorityCalculatorAgeBonusUpgrades(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)
	calculator := NewPriorityCalculator(func() time.Time { return now })

	cases := []struct {
		severity domain.Severity
		age      time.Duration
		want     domain.Severity
	}{
		// LOW 40 + 20 = 60 after 30m.
		{domain.SeverityLow, 30 * time.Minute, domain.SeverityMedium},
		{domain.SeverityLow, 29 * time.Minute, domain.SeverityLow},
		// MEDIUM 60 + 20 = 80 after 60m.
		{domain.SeverityMedium, time.Hour, domain.SeverityHigh},
		{domain.SeverityMedium, 59 * time.Minute, domain.SeverityMedium},
		// HIGH 80 + 20 = 100 after 120m.
		{domain.SeverityHigh, 2 * time.Hour, domain.SeverityCritical},
		{domain.SeverityHigh, 119 * time.Minute, domain.SeverityHigh},
		// No thresholds outside LOW/MEDIUM/HIGH.
		{domain.SeverityWarning, 10 * time.Hour, domain.SeverityWarning},
		{domain.SeverityCritical, 10 * time.Hour, domain.SeverityCritical},
		{domain.SeverityInfo, 10 * time.Hour, domain.SeverityInfo},
	}
	for _, tc := range cases {
		alarm := domain.Alarm{Severity: tc.severity, OccurredAt: now.Add(-tc.age)}
		if err := calculator.Process(context.Background(), &alarm); err != nil {
			t.Fatalf("process: %v", err)
		}
		if alarm.Severity != tc.want {
			t.Fatalf("%s aged %v: want %s, got %s", tc.severity, tc.age, tc.want, alarm.Severity)
		}
	}
}

func TestSeverityForScoreBands(t *testing.T) {
	t.Parallel()

	cases := []struct {
		score int
		want  domain.Severity
	}{
		{100, domain.SeverityCritical},
		{99, domain.SeverityHigh},
		{80, domain.SeverityHigh},
		{79, domain.SeverityMedium},
		{60, domain.SeverityMedium},
		{59, domain.SeverityLow},
		{40, domain.SeverityLow},
		{39, domain.SeverityInfo},
		{0, domain.SeverityInfo},
	}
	for _, tc := range cases {
		if got := severityForScore(tc.score); got != tc.want {
			t.Fatalf("score %d: want %s, got %s", tc.score, tc.want, got)
		}
	}
}
