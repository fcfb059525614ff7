package cmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"catalogload/internal/cli"
	"catalogload/internal/config"
	"catalogload/internal/scenario"
	"catalogload/internal/stats"
	"catalogload/internal/storage"
)

var runCmd = &cobra.Command{
	Use:   "run [scenario]",
	Short: "Run a load scenario (default: products)",
	Example: `  catalogload run top-products
  BASE_URL=http://staging:8080 catalogload run products --stages 30s:50,1m:50,30s:0
  catalogload run products --threshold "http_req_duration=p(99)<1500" --out report`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: scenario.Names(),
}

// addRunFlags registers the run options on c. Both the root command and run
// accept them.
func addRunFlags(c *cobra.Command) {
	f := c.Flags()
	f.String(config.KeyBaseURL, config.DefaultBaseURL, "Base URL of the catalog service (env BASE_URL)")
	f.String(config.KeyStages, scenario.DefaultStages().String(), "Stage plan as duration:target pairs")
	f.StringArray(config.KeyThreshold, nil, `Threshold as metric=expr[;expr], e.g. "errors=rate<0.01"`)
	f.Duration(config.KeyTimeout, 60*time.Second, "Request timeout")
	f.Duration(config.KeyThinkMin, time.Second, "Minimum think time between iterations")
	f.Duration(config.KeyThinkMax, 3*time.Second, "Maximum think time between iterations")
	f.Int(config.KeyRPS, 0, "Global request rate cap (0 = unlimited)")
	f.Bool(config.KeyInsecure, false, "Skip TLS certificate verification")
	f.StringArrayP(config.KeyHeaders, "H", nil, `Extra header "Key: Value"; values may use {{vu}}, {{iter}}, {{uuid}}`)
	f.StringP(config.KeyOut, "o", "", "Output filename prefix for CSV/JSON reports")
	f.Bool(config.KeyHistory, false, "Save the run summary to the history database")
	f.String(config.KeyMetricsAddr, "", "Serve Prometheus metrics on this address, e.g. :9090")
	f.Bool(config.KeyTUI, false, "Show the live dashboard")
	f.Duration(config.KeyGracefulStop, 30*time.Second, "Time running iterations get to finish after the last stage")
}

func init() {
	runCmd.RunE = func(cmd *cobra.Command, args []string) error {
		name := "products"
		if len(args) == 1 {
			name = args[0]
		}
		return runScenario(cmd.Context(), name)
	}
	addRunFlags(runCmd)
}

// bindRunFlags points viper at the flags of the command being executed.
func bindRunFlags(c *cobra.Command) error {
	var err error
	c.Flags().VisitAll(func(fl *pflag.Flag) {
		if fl.Name == "help" || err != nil {
			return
		}
		err = v.BindPFlag(fl.Name, fl)
	})
	return err
}

func runScenario(ctx context.Context, name string) error {
	c := rootCmd
	if runCmd.CalledAs() != "" {
		c = runCmd
	}
	if err := bindRunFlags(c); err != nil {
		return err
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	sc, err := scenario.Lookup(name)
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	opts := cli.Options{
		Config:   cfg,
		Scenario: sc,
		Log:      log.WithField("scenario", sc.Name),
		Out:      os.Stdout,
	}

	if cfg.MetricsAddr != "" {
		opts.Prom = stats.NewPromSink("catalogload")
		srv, err := serveMetrics(cfg.MetricsAddr, opts.Prom, log)
		if err != nil {
			return err
		}
		defer srv.Close()
	}

	if cfg.History {
		store, err := storage.NewStore(cfg.HistoryPath)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.History = store
	}

	code, err := cli.Start(ctx, opts)
	if err != nil {
		return err
	}
	if code != cli.ExitOK {
		return exitError{code: code}
	}
	return nil
}

func serveMetrics(addr string, prom *stats.PromSink, log logrus.FieldLogger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", addr)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(prom.Handler()))
	srv := &http.Server{Handler: r}

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	log.WithField("addr", ln.Addr().String()).Info("serving Prometheus metrics on /metrics")
	return srv, nil
}
