package resource

import (
	"context"

	"golang.org/x/text/message"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/cache"
	"grimm.is/rampart/internal/client"
	"grimm.is/rampart/internal/i18n"
)

// LogQuery is the server-side filter of the attack log view. Every field is
// part of the cache key.
type LogQuery = api.LogQuery

// Cache resource names of the read-only views.
const (
	AttackLogsResource = "logs"
	DashboardResource  = "dashboard"
	MonitorResource    = "monitor"
)

// Reports serves the read-only telemetry views.
type Reports struct {
	api     *client.HTTPClient
	cache   *cache.Cache
	printer *message.Printer
}

// NewReports creates the telemetry reader.
func NewReports(deps Deps) *Reports {
	return &Reports{api: deps.API, cache: deps.Cache, printer: deps.printer()}
}

// LogsKey is the cache key for q.
func LogsKey(q LogQuery) cache.Key {
	return cache.KeyFromValues(AttackLogsResource, q.Values())
}

// AttackLogs returns the entries matching q.
func (r *Reports) AttackLogs(ctx context.Context, q LogQuery) Result[[]api.AttackLog] {
	logs, err := cache.Query(ctx, r.cache, LogsKey(q), func(ctx context.Context) ([]api.AttackLog, error) {
		return r.api.AttackLogs(ctx, q)
	})
	if err != nil {
		return loadFailed[[]api.AttackLog](r.printer, r.printer.Sprintf(i18n.ResourceAttackLogs), err)
	}
	return Result[[]api.AttackLog]{Value: logs}
}

// RefreshAttackLogs refetches q regardless of freshness.
func (r *Reports) RefreshAttackLogs(ctx context.Context, q LogQuery) Result[[]api.AttackLog] {
	logs, err := cache.Refresh(ctx, r.cache, LogsKey(q), func(ctx context.Context) ([]api.AttackLog, error) {
		return r.api.AttackLogs(ctx, q)
	})
	if err != nil {
		return loadFailed[[]api.AttackLog](r.printer, r.printer.Sprintf(i18n.ResourceAttackLogs), err)
	}
	return Result[[]api.AttackLog]{Value: logs}
}

// Dashboard returns the overview counters.
func (r *Reports) Dashboard(ctx context.Context) Result[api.DashboardSummary] {
	d, err := cache.Query(ctx, r.cache, cache.NewKey(DashboardResource, nil), func(ctx context.Context) (api.DashboardSummary, error) {
		v, err := r.api.Dashboard(ctx)
		if err != nil {
			return api.DashboardSummary{}, err
		}
		return *v, nil
	})
	if err != nil {
		return loadFailed[api.DashboardSummary](r.printer, r.printer.Sprintf(i18n.ResourceDashboard), err)
	}
	return Result[api.DashboardSummary]{Value: d}
}

// MonitorKey is the cache key of the monitor summary.
var MonitorKey = cache.NewKey(MonitorResource, nil)

// Monitor fetches the live traffic summary. It always goes to the server;
// the monitor view polls it.
func (r *Reports) Monitor(ctx context.Context) Result[api.MonitorSummary] {
	m, err := cache.Refresh(ctx, r.cache, MonitorKey, func(ctx context.Context) (api.MonitorSummary, error) {
		v, err := r.api.Monitor(ctx)
		if err != nil {
			return api.MonitorSummary{}, err
		}
		return *v, nil
	})
	if err != nil {
		return loadFailed[api.MonitorSummary](r.printer, r.printer.Sprintf(i18n.ResourceMonitor), err)
	}
	return Result[api.MonitorSummary]{Value: m}
}
