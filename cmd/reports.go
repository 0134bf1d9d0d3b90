package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/resource"
)

var (
	logsSearch string
	logsSince  time.Duration
	logsDate   string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show attack logs",
	Long: `Show the requests the WAF acted on. Without --since or --date the current
local day is shown. Filtering happens on the server.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		q, err := logQuery(time.Now())
		if err != nil {
			return err
		}

		a, err := requireSession(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		r := resource.NewReports(a.deps()).AttackLogs(cmd.Context(), q)
		if !r.OK() {
			return failure(r)
		}
		return render(out(cmd), r.Value, func() pterm.TableData {
			data := pterm.TableData{{"Time", "Client", "Method", "Host", "URI", "Action", "Status"}}
			for _, l := range r.Value {
				data = append(data, []string{
					l.Timestamp.Local().Format("2006-01-02 15:04:05"),
					l.ClientIP,
					l.RequestMethod,
					l.Host,
					l.RequestURI,
					l.WafAction,
					strconv.Itoa(l.ResponseStatus),
				})
			}
			return data
		})
	},
}

// logQuery builds the server-side filter from the logs flags.
func logQuery(now time.Time) (api.LogQuery, error) {
	var q api.LogQuery
	switch {
	case logsSince > 0 && logsDate != "":
		return q, fmt.Errorf("--since and --date are mutually exclusive")
	case logsSince > 0:
		q = api.LogQuery{Start: now.Add(-logsSince), End: now}
	case logsDate != "":
		day, err := time.ParseInLocation("2006-01-02", logsDate, now.Location())
		if err != nil {
			return q, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", logsDate)
		}
		q = api.Today(day)
	default:
		q = api.Today(now)
	}
	q.Search = strings.TrimSpace(logsSearch)
	return q, nil
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show the overview counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := requireSession(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		r := resource.NewReports(a.deps()).Dashboard(cmd.Context())
		if !r.OK() {
			return failure(r)
		}
		d := r.Value
		return render(out(cmd), d, func() pterm.TableData {
			return keyValues(
				"Sites", strconv.Itoa(d.TotalSites),
				"Active rules", strconv.Itoa(d.ActiveRules),
				"Blocked today", strconv.Itoa(d.BlockedToday),
				"Certificates", strconv.Itoa(d.Certificates),
				"XSS", strconv.Itoa(d.ThreatStats.XSS),
				"SQL injection", strconv.Itoa(d.ThreatStats.SQLInjection),
				"RCE", strconv.Itoa(d.ThreatStats.RCE),
				"LFI", strconv.Itoa(d.ThreatStats.LFI),
			)
		})
	},
}

var (
	monitorWatch    bool
	monitorInterval time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Show live traffic",
	Long: `Show the live traffic summary. With --watch the summary is polled until
interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := requireSession(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		reports := resource.NewReports(a.deps())

		if !monitorWatch {
			r := reports.Monitor(cmd.Context())
			if !r.OK() {
				return failure(r)
			}
			return render(out(cmd), r.Value, func() pterm.TableData { return monitorTable(r.Value) })
		}

		interval := monitorInterval
		if interval <= 0 {
			interval = cfg.PollInterval()
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watchMonitor(ctx, a, reports, interval)
	},
}

// watchMonitor redraws the summary on every poll until ctx ends or the
// session is rejected.
func watchMonitor(ctx context.Context, a *app, reports *resource.Reports, interval time.Duration) error {
	results := make(chan resource.Result[api.MonitorSummary], 1)
	poller := resource.NewPoller[api.MonitorSummary](logger.WithComponent("monitor"))
	poller.Start(ctx, interval, resource.ObserveKey(a.cache, resource.MonitorKey), reports.Monitor,
		func(r resource.Result[api.MonitorSummary]) {
			select {
			case results <- r:
			default:
			}
		})
	defer poller.Stop()

	area, err := pterm.DefaultArea.Start()
	if err != nil {
		return err
	}
	defer area.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-results:
			if r.Silent() {
				return explain(r.Err)
			}
			if !r.OK() {
				area.Update(pterm.Error.Sprint(r.Notice))
				continue
			}
			table, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(monitorTable(r.Value)).Srender()
			if err != nil {
				return err
			}
			area.Update(table + "\n" + pterm.Gray(fmt.Sprintf("updated %s, every %s, ctrl+c to stop", time.Now().Format("15:04:05"), interval)))
		}
	}
}

func monitorTable(m api.MonitorSummary) pterm.TableData {
	var requests, blocked []string
	for _, p := range m.TrafficStats {
		requests = append(requests, strconv.Itoa(p.Requests))
		blocked = append(blocked, strconv.Itoa(p.Blocked))
	}
	return keyValues(
		"Requests", strconv.Itoa(m.TotalRequests),
		"Blocked", strconv.Itoa(m.BlockedRequests),
		"Attacks", strconv.Itoa(m.AttackRequests),
		"Avg response", fmt.Sprintf("%.1f ms", m.AvgResponseTime),
		"Critical / high", fmt.Sprintf("%d / %d", m.SeverityCount.Critical, m.SeverityCount.High),
		"Medium / low", fmt.Sprintf("%d / %d", m.SeverityCount.Medium, m.SeverityCount.Low),
		"Requests series", strings.Join(requests, " "),
		"Blocked series", strings.Join(blocked, " "),
	)
}

func init() {
	logsCmd.Flags().StringVarP(&logsSearch, "search", "s", "", "match client IP, URI, host or user agent")
	logsCmd.Flags().DurationVar(&logsSince, "since", 0, "show the last duration, e.g. 1h")
	logsCmd.Flags().StringVar(&logsDate, "date", "", "show one local day (YYYY-MM-DD)")

	monitorCmd.Flags().BoolVarP(&monitorWatch, "watch", "w", false, "keep polling until interrupted")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 0, "poll interval (default from config)")
}
