package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/ElvinaPau/pathlab-admin"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Authentication metrics
	LoginsTotal        metric.Int64Counter
	LoginFailuresTotal metric.Int64Counter
	LogoutsTotal       metric.Int64Counter

	// Refresh metrics
	RefreshesTotal       metric.Int64Counter
	RefreshFailuresTotal metric.Int64Counter
	RefreshReuseTotal    metric.Int64Counter

	// Account metrics
	SignupsTotal         metric.Int64Counter
	PasswordResetsTotal  metric.Int64Counter
	SessionsExpiredTotal metric.Int64Counter

	// Request metrics
	RequestDuration metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.LoginsTotal, _ = meter.Int64Counter(
		"pathlab.auth.logins.total",
		metric.WithDescription("Total number of successful logins"),
		metric.WithUnit("{login}"),
	)

	m.LoginFailuresTotal, _ = meter.Int64Counter(
		"pathlab.auth.login_failures.total",
		metric.WithDescription("Total number of rejected login attempts"),
		metric.WithUnit("{attempt}"),
	)

	m.LogoutsTotal, _ = meter.Int64Counter(
		"pathlab.auth.logouts.total",
		metric.WithDescription("Total number of logouts"),
		metric.WithUnit("{logout}"),
	)

	m.RefreshesTotal, _ = meter.Int64Counter(
		"pathlab.auth.refreshes.total",
		metric.WithDescription("Total number of successful token refreshes"),
		metric.WithUnit("{refresh}"),
	)

	m.RefreshFailuresTotal, _ = meter.Int64Counter(
		"pathlab.auth.refresh_failures.total",
		metric.WithDescription("Total number of rejected token refreshes"),
		metric.WithUnit("{refresh}"),
	)

	m.RefreshReuseTotal, _ = meter.Int64Counter(
		"pathlab.auth.refresh_reuse.total",
		metric.WithDescription("Total number of refresh credential reuse detections"),
		metric.WithUnit("{detection}"),
	)

	m.SignupsTotal, _ = meter.Int64Counter(
		"pathlab.accounts.signups.total",
		metric.WithDescription("Total number of account requests submitted"),
		metric.WithUnit("{signup}"),
	)

	m.PasswordResetsTotal, _ = meter.Int64Counter(
		"pathlab.accounts.password_resets.total",
		metric.WithDescription("Total number of completed password resets"),
		metric.WithUnit("{reset}"),
	)

	m.SessionsExpiredTotal, _ = meter.Int64Counter(
		"pathlab.sessions.expired.total",
		metric.WithDescription("Total number of sessions removed by the expiry janitor"),
		metric.WithUnit("{session}"),
	)

	m.RequestDuration, _ = meter.Float64Histogram(
		"pathlab.http.request.duration",
		metric.WithDescription("Duration of HTTP requests"),
		metric.WithUnit("ms"),
	)

	return m
}

// RegisterActiveSessions registers an observable gauge that reports the
// number of live refresh sessions via the given count function.
func RegisterActiveSessions(count func(ctx context.Context) (int, error)) error {
	meter := otel.GetMeterProvider().Meter(meterName)

	gauge, err := meter.Int64ObservableGauge(
		"pathlab.sessions.active",
		metric.WithDescription("Number of live refresh sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		n, err := count(ctx)
		if err != nil {
			return err
		}
		o.ObserveInt64(gauge, int64(n))
		return nil
	}, gauge)
	return err
}
