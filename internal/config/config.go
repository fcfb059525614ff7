// Package config resolves run options from flags, environment and an
// optional YAML file.
package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"catalogload/internal/runner"
	"catalogload/internal/scenario"
	"catalogload/internal/threshold"
)

const (
	EnvPrefix      = "CATALOGLOAD"
	DefaultBaseURL = "http://localhost:8080"
)

// Viper keys. Flag names use the same spelling.
const (
	KeyBaseURL      = "base-url"
	KeyStages       = "stages"
	KeyThresholds   = "thresholds"
	KeyThreshold    = "threshold"
	KeyTimeout      = "timeout"
	KeyThinkMin     = "think-min"
	KeyThinkMax     = "think-max"
	KeyRPS          = "rps"
	KeyInsecure     = "insecure"
	KeyHeaders      = "header"
	KeyOut          = "out"
	KeyHistory      = "history"
	KeyHistoryPath  = "history-path"
	KeyMetricsAddr  = "metrics-addr"
	KeyLogLevel     = "log-level"
	KeyLogFormat    = "log-format"
	KeyTUI          = "tui"
	KeyGracefulStop = "graceful-stop"
)

// Config is the resolved set of options for one run.
type Config struct {
	BaseURL      string
	Stages       scenario.Stages
	Thresholds   map[string][]string
	Timeout      time.Duration
	ThinkMin     time.Duration
	ThinkMax     time.Duration
	RPS          int
	Insecure     bool
	Headers      map[string]string
	Out          string
	History      bool
	HistoryPath  string
	MetricsAddr  string
	LogLevel     string
	LogFormat    string
	TUI          bool
	GracefulStop time.Duration
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyBaseURL, DefaultBaseURL)
	v.SetDefault(KeyStages, scenario.DefaultStages().String())
	v.SetDefault(KeyTimeout, 60*time.Second)
	v.SetDefault(KeyThinkMin, time.Second)
	v.SetDefault(KeyThinkMax, 3*time.Second)
	v.SetDefault(KeyRPS, 0)
	v.SetDefault(KeyHistoryPath, DefaultHistoryPath())
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyGracefulStop, runner.DefaultGracefulStop)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// BASE_URL is honoured without the prefix.
	_ = v.BindEnv(KeyBaseURL, EnvPrefix+"_BASE_URL", "BASE_URL")
}

// Load reads every option out of v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		BaseURL:      strings.TrimSpace(v.GetString(KeyBaseURL)),
		Timeout:      v.GetDuration(KeyTimeout),
		ThinkMin:     v.GetDuration(KeyThinkMin),
		ThinkMax:     v.GetDuration(KeyThinkMax),
		RPS:          v.GetInt(KeyRPS),
		Insecure:     v.GetBool(KeyInsecure),
		Out:          v.GetString(KeyOut),
		History:      v.GetBool(KeyHistory),
		HistoryPath:  v.GetString(KeyHistoryPath),
		MetricsAddr:  v.GetString(KeyMetricsAddr),
		LogLevel:     v.GetString(KeyLogLevel),
		LogFormat:    v.GetString(KeyLogFormat),
		TUI:          v.GetBool(KeyTUI),
		GracefulStop: v.GetDuration(KeyGracefulStop),
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	var err error
	if cfg.Stages, err = scenario.ParseStages(v.GetString(KeyStages)); err != nil {
		return Config{}, errors.Wrap(err, "stages")
	}
	if cfg.Headers, err = ParseHeaders(v.GetStringSlice(KeyHeaders)); err != nil {
		return Config{}, err
	}

	cfg.Thresholds = threshold.Defaults()
	for k, exprs := range v.GetStringMapStringSlice(KeyThresholds) {
		cfg.Thresholds[k] = exprs
	}
	extra, err := ParseThresholds(v.GetStringSlice(KeyThreshold))
	if err != nil {
		return Config{}, err
	}
	for k, exprs := range extra {
		cfg.Thresholds[k] = exprs
	}

	if cfg.Timeout <= 0 {
		return Config{}, errors.Errorf("timeout must be positive, got %s", cfg.Timeout)
	}
	if cfg.ThinkMin < 0 || cfg.ThinkMax < cfg.ThinkMin {
		return Config{}, errors.Errorf("invalid think time range [%s, %s)", cfg.ThinkMin, cfg.ThinkMax)
	}
	if cfg.RPS < 0 {
		return Config{}, errors.Errorf("rps must not be negative, got %d", cfg.RPS)
	}
	return cfg, nil
}

// Runner converts the options the executor needs.
func (c Config) Runner() runner.Config {
	return runner.Config{
		BaseURL:      c.BaseURL,
		Stages:       c.Stages,
		GracefulStop: c.GracefulStop,
		Tick:         runner.DefaultTick,
		Timeout:      c.Timeout,
		ThinkMin:     c.ThinkMin,
		ThinkMax:     c.ThinkMax,
		RPS:          c.RPS,
		Insecure:     c.Insecure,
		Headers:      c.Headers,
		KeepResults:  c.Out != "",
	}
}

// ParseHeaders reads "Key: Value" pairs.
func ParseHeaders(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, h := range raw {
		k, v, ok := strings.Cut(h, ":")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.Errorf("header %q: want \"Key: Value\"", h)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

// ParseThresholds reads "metric=expr[;expr]" entries. Later entries for the
// same metric replace earlier ones.
func ParseThresholds(raw []string) (map[string][]string, error) {
	out := make(map[string][]string, len(raw))
	for _, t := range raw {
		key, exprs, ok := strings.Cut(t, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Errorf("threshold %q: want metric=expr", t)
		}
		var list []string
		for _, e := range strings.Split(exprs, ";") {
			if e = strings.TrimSpace(e); e != "" {
				list = append(list, e)
			}
		}
		if len(list) == 0 {
			return nil, errors.Errorf("threshold %q: no expressions", t)
		}
		out[key] = list
	}
	return out, nil
}

// DefaultHistoryPath is $HOME/.catalogload/history.db, or a file in the
// working directory when there is no home.
func DefaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "catalogload-history.db"
	}
	return filepath.Join(home, ".catalogload", "history.db")
}

// NewLogger builds the run logger. format is text or json.
func NewLogger(level, format string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(lvl)
	switch strings.ToLower(format) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, errors.Errorf("unknown log format %q", format)
	}
	return log, nil
}
