package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/sarops/s1compose/internal/build"
	"github.com/sarops/s1compose/internal/cmn/fileutil"
	"github.com/sarops/s1compose/internal/planner"
	"github.com/sarops/s1compose/internal/runner"
	"github.com/sarops/s1compose/internal/scene"
	"github.com/sarops/s1compose/internal/scheduler"
	"github.com/sarops/s1compose/internal/temporal"
)

// Load creates the configuration by instantiating a Loader with the
// provided options and invoking its Load method.
func Load(opts ...LoaderOption) (*Config, error) {
	loader := NewLoader(opts...)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Loader reads and merges configuration from the config file,
// environment variables and defaults.
type Loader struct {
	lock       sync.Mutex
	configFile string
	warnings   []string
}

// LoaderOption is a functional option for a Loader.
type LoaderOption func(*Loader)

// WithConfigFile sets an explicit configuration file path.
func WithConfigFile(configFile string) LoaderOption {
	return func(l *Loader) {
		l.configFile = configFile
	}
}

// NewLoader creates a Loader and applies all given options.
func NewLoader(options ...LoaderOption) *Loader {
	loader := &Loader{}
	for _, option := range options {
		option(loader)
	}
	return loader
}

// Load initializes viper, reads the configuration file when present,
// and returns a validated Config.
func (l *Loader) Load() (*Config, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.setupViper()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := l.buildConfig()
	if err != nil {
		return nil, err
	}
	cfg.Warnings = l.warnings
	cfg.Global.ConfigPath = viper.ConfigFileUsed()
	return cfg, nil
}

func (l *Loader) buildConfig() (*Config, error) {
	cfg := &Config{
		Global: Global{
			Debug:     viper.GetBool("debug"),
			LogFormat: viper.GetString("logFormat"),
			Quiet:     viper.GetBool("quiet"),
		},
		Paths: Paths{
			DataDir:    l.resolvePath("paths.dataDir"),
			LogDir:     l.resolvePath("paths.logDir"),
			ScratchDir: l.resolvePath("paths.scratchDir"),
		},
		Tools: Tools{
			GPT:      l.resolvePath("tools.gpt"),
			Mosaic:   l.resolvePath("tools.mosaic"),
			GraphDir: l.resolvePath("tools.graphDir"),
		},
		Batch: Batch{
			Tier:            viper.GetString("batch.tier"),
			MaxWorkers:      viper.GetInt("batch.maxWorkers"),
			CeilingFraction: viper.GetFloat64("batch.ceilingFraction"),
			JobTimeout:      viper.GetDuration("batch.jobTimeout"),
			StopOnError:     viper.GetBool("batch.stopOnError"),
			RetryPolicy:     viper.GetString("batch.retryPolicy"),
			TimeoutRetries:  viper.GetInt("batch.timeoutRetries"),
		},
		Stack: Stack{
			PeriodDays:  viper.GetInt("stack.periodDays"),
			Statistic:   viper.GetString("stack.statistic"),
			RevisitDays: viper.GetInt("stack.revisitDays"),
			FillGaps:    viper.GetBool("stack.fillGaps"),
			ByTrack:     viper.GetBool("stack.byTrack"),
			HarmoCost:   viper.GetString("stack.harmoCost"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// resolvePath expands ~ and environment variables in a configured path.
// Unresolvable paths are kept verbatim with a warning so a typo does not
// abort a batch that never touches the path.
func (l *Loader) resolvePath(key string) string {
	val := viper.GetString(key)
	if val == "" {
		return ""
	}
	resolved, err := fileutil.ResolvePath(val)
	if err != nil {
		l.warnings = append(l.warnings, fmt.Sprintf("could not resolve %s=%q: %v", key, val, err))
		return val
	}
	return resolved
}

func (l *Loader) setupViper() {
	if l.configFile == "" {
		viper.AddConfigPath(filepath.Join(xdg.ConfigHome, build.Slug))
		viper.SetConfigName("config")
	} else {
		viper.SetConfigFile(l.configFile)
	}
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix(strings.ToUpper(build.Slug))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	l.bindEnvironmentVariables()
	l.setDefaultValues()
}

func (l *Loader) setDefaultValues() {
	dataHome := filepath.Join(xdg.DataHome, build.Slug)

	viper.SetDefault("debug", false)
	viper.SetDefault("logFormat", "text")
	viper.SetDefault("quiet", false)

	viper.SetDefault("paths.dataDir", dataHome)
	viper.SetDefault("paths.logDir", filepath.Join(dataHome, "logs"))
	viper.SetDefault("paths.scratchDir", filepath.Join(xdg.CacheHome, build.Slug, "scratch"))

	viper.SetDefault("tools.gpt", "gpt")
	viper.SetDefault("tools.mosaic", "otbcli_Mosaic")
	viper.SetDefault("tools.graphDir", filepath.Join(dataHome, "graphs"))

	viper.SetDefault("batch.tier", string(planner.Tier20m))
	viper.SetDefault("batch.maxWorkers", planner.DefaultMaxWorkers)
	viper.SetDefault("batch.ceilingFraction", planner.DefaultCeilingFraction)
	viper.SetDefault("batch.jobTimeout", 2*time.Hour)
	viper.SetDefault("batch.stopOnError", false)
	viper.SetDefault("batch.retryPolicy", "constant")
	viper.SetDefault("batch.timeoutRetries", scheduler.DefaultTimeoutRetries)

	viper.SetDefault("stack.periodDays", temporal.DefaultPeriodDays)
	viper.SetDefault("stack.statistic", "median")
	viper.SetDefault("stack.revisitDays", scene.DefaultRevisitDays)
	viper.SetDefault("stack.fillGaps", true)
	viper.SetDefault("stack.byTrack", true)
	viper.SetDefault("stack.harmoCost", runner.HarmoCostRMSE)
}

func (l *Loader) bindEnvironmentVariables() {
	l.bindEnv("debug", "DEBUG")
	l.bindEnv("logFormat", "LOG_FORMAT")
	l.bindEnv("quiet", "QUIET")

	l.bindEnv("paths.dataDir", "DATA_DIR")
	l.bindEnv("paths.logDir", "LOG_DIR")
	l.bindEnv("paths.scratchDir", "SCRATCH_DIR")

	l.bindEnv("tools.gpt", "GPT")
	l.bindEnv("tools.mosaic", "MOSAIC")
	l.bindEnv("tools.graphDir", "GRAPH_DIR")

	l.bindEnv("batch.tier", "TIER")
	l.bindEnv("batch.maxWorkers", "MAX_WORKERS")
	l.bindEnv("batch.ceilingFraction", "CEILING_FRACTION")
	l.bindEnv("batch.jobTimeout", "JOB_TIMEOUT")
	l.bindEnv("batch.stopOnError", "STOP_ON_ERROR")
	l.bindEnv("batch.retryPolicy", "RETRY_POLICY")
	l.bindEnv("batch.timeoutRetries", "TIMEOUT_RETRIES")

	l.bindEnv("stack.periodDays", "PERIOD_DAYS")
	l.bindEnv("stack.statistic", "STATISTIC")
	l.bindEnv("stack.revisitDays", "REVISIT_DAYS")
	l.bindEnv("stack.fillGaps", "FILL_GAPS")
	l.bindEnv("stack.byTrack", "BY_TRACK")
	l.bindEnv("stack.harmoCost", "HARMO_COST")
}

func (l *Loader) bindEnv(key, env string) {
	prefix := strings.ToUpper(build.Slug) + "_"
	_ = viper.BindEnv(key, prefix+env)
}
