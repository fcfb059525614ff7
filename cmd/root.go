package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"catalogload/internal/banner"
	"catalogload/internal/cli"
	"catalogload/internal/config"
)

var (
	cfgFile string
	v       = viper.New()
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

var rootCmd = &cobra.Command{
	Use:   "catalogload",
	Short: "catalogload - load tests for the product catalog API",
	Long: `
catalogload ramps virtual users against a product catalog service, checks
every response and reports latency and error thresholds.

Running without a subcommand runs the "products" scenario.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree and exits with the run's status.
func Execute() {
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return
	}
	if e, ok := err.(exitError); ok {
		stop()
		os.Exit(e.code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	stop()
	os.Exit(cli.ExitError)
}

func init() {
	// RunE is assigned here rather than in the literal to avoid an
	// initialization cycle through runScenario.
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runScenario(cmd.Context(), "products")
	}

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(runCmd, scenariosCmd, dummyCmd, historyCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.catalogload.yaml)")
	pf.String(config.KeyLogLevel, "info", "Log level (debug, info, warn, error)")
	pf.String(config.KeyLogFormat, "text", "Log format (text, json)")
	pf.String(config.KeyHistoryPath, config.DefaultHistoryPath(), "History database path")

	addRunFlags(rootCmd)

	config.SetDefaults(v)
	for _, name := range []string{config.KeyLogLevel, config.KeyLogFormat, config.KeyHistoryPath} {
		v.BindPFlag(name, pf.Lookup(name))
	}
}

func initConfig() {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
			v.SetConfigType("yaml")
			v.SetConfigName(".catalogload")
		}
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			fmt.Fprintf(os.Stderr, "Error reading config %s: %v\n", cfgFile, err)
			os.Exit(cli.ExitError)
		}
	}
}

func newLogger() (*logrus.Logger, error) {
	return config.NewLogger(v.GetString(config.KeyLogLevel), v.GetString(config.KeyLogFormat), os.Stderr)
}
