package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"catalogload/internal/dummy"
)

var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Run the stub catalog server",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		f := cmd.Flags()
		port, _ := f.GetInt("port")
		latency, _ := f.GetDuration("latency")
		jitter, _ := f.GetDuration("jitter")
		failRatio, _ := f.GetFloat64("fail-ratio")
		size, _ := f.GetInt("catalog-size")

		srv, err := dummy.Start(dummy.ServerConfig{
			Port: port,
			Options: dummy.Options{
				Latency:     latency,
				Jitter:      jitter,
				FailRatio:   failRatio,
				CatalogSize: size,
				Log:         log,
			},
		})
		if err != nil {
			return err
		}

		<-cmd.Context().Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	f := dummyCmd.Flags()
	f.IntP("port", "p", 8080, "Port to run dummy server on")
	f.Duration("latency", 0, "Fixed latency added to every response")
	f.Duration("jitter", 0, "Random latency added on top, up to this value")
	f.Float64("fail-ratio", 0, "Share of requests answered with a 500 (0-1)")
	f.Int("catalog-size", 50, "Number of products behind /products/top")
}
