package cmd

import (
	"crypto/tls"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"grimm.is/rampart/internal/api/server"
	"grimm.is/rampart/internal/audit"
	"grimm.is/rampart/internal/brand"
	"grimm.is/rampart/internal/metrics"
	"grimm.is/rampart/internal/pki"
)

var (
	devListen      string
	devPrefix      string
	devSeed        bool
	devTraffic     time.Duration
	devTokenTTL    time.Duration
	devMetricsAddr string
	devTLS         bool
	devTLSDir      string
	devTLSHosts    []string
	devAuditDB     string
	devAttempts    int
)

var devServerCmd = &cobra.Command{
	Use:   "dev-server",
	Short: "Run an in-memory management API for development",
	Long: `Run an in-memory implementation of the management API. Accounts:
admin/admin123 (admin) and operator/operator123 (user). Resources are kept in memory and lost on exit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var trail *audit.Store
		if devAuditDB != "" {
			t, err := audit.Open(audit.Options{Path: devAuditDB})
			if err != nil {
				return err
			}
			defer t.Close()
			trail = t
		}

		srv, err := server.New(server.Options{
			Seed:          devSeed,
			TokenTTL:      devTokenTTL,
			Logger:        logger.WithComponent("dev-server"),
			Metrics:       metrics.Get(),
			Prefix:        devPrefix,
			LoginAttempts: devAttempts,
			Audit:         trail,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		l, err := devListener()
		if err != nil {
			return err
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Serve(ctx, l) })

		if trail != nil {
			g.Go(func() error {
				trail.RunPrune(ctx, time.Hour, logger.WithComponent("audit"))
				return nil
			})
		}

		if devTraffic > 0 {
			g.Go(func() error {
				srv.Data.GenerateTraffic(ctx, rand.New(rand.NewSource(time.Now().UnixNano())), devTraffic)
				return nil
			})
		}

		if devMetricsAddr != "" {
			ms := &http.Server{Addr: devMetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
			g.Go(func() error {
				logger.Info("metrics listening", "addr", devMetricsAddr)
				if err := ms.ListenAndServe(); err != http.ErrServerClosed {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				return ms.Close()
			})
		}

		return g.Wait()
	},
}

// devListener opens the listen address, wrapped in TLS with a managed
// self-signed certificate when --tls is set.
func devListener() (net.Listener, error) {
	l, err := net.Listen("tcp", devListen)
	if err != nil {
		return nil, err
	}
	if !devTLS {
		return l, nil
	}

	dir := devTLSDir
	if dir == "" {
		dir = filepath.Join(brand.GetStateDir(), "dev-tls")
	}
	cert, err := pki.NewCertManager(dir, devTLSHosts, nil, logger.WithComponent("pki")).EnsureCert()
	if err != nil {
		l.Close()
		return nil, err
	}
	logger.Info("serving TLS", "fingerprint", pki.Fingerprint(cert), "dir", dir)
	return tls.NewListener(l, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}), nil
}

func init() {
	f := devServerCmd.Flags()
	f.StringVar(&devListen, "listen", "127.0.0.1:8080", "listen address")
	f.StringVar(&devPrefix, "prefix", "/api", "route prefix")
	f.BoolVar(&devSeed, "seed", true, "populate sample sites, rules, certificates and logs")
	f.DurationVar(&devTraffic, "traffic", 2*time.Second, "generate a synthetic attack log entry this often (0 disables)")
	f.DurationVar(&devTokenTTL, "token-ttl", 12*time.Hour, "lifetime of issued tokens")
	f.StringVar(&devMetricsAddr, "metrics", "", "serve Prometheus metrics on this address")
	f.StringVar(&devAuditDB, "audit-db", "", "record sign-ins and changes in this SQLite file")
	f.IntVar(&devAttempts, "login-attempts", 10, "failed logins per client and user each minute before 429 (-1 disables)")
	f.BoolVar(&devTLS, "tls", false, "serve HTTPS with a self-signed certificate")
	f.StringVar(&devTLSDir, "tls-dir", "", "where the certificate is kept (default: dev-tls in the state directory)")
	f.StringSliceVar(&devTLSHosts, "tls-host", nil, "host names and IPs the certificate covers (default: localhost and loopback)")
}
