// Package profiling starts the optional pprof endpoint and Pyroscope continuous profiler.
package profiling

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	"time"

	"github.com/grafana/pyroscope-go"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
)

const (
	defaultPprofPort       = "6060"
	defaultPyroscopeURL    = "http://pyroscope:4040"
	defaultEnvironment     = "development"
	pprofReadHeaderTimeout = 5 * time.Second
	applicationNamePrefix  = "north-cloud."
	unknownTagValue        = "unknown"
)

// Config controls which profilers run.
type Config struct {
	PprofEnabled     bool   `env:"ENABLE_PROFILING"            yaml:"pprof_enabled"`
	PprofPort        string `env:"PPROF_PORT"                  yaml:"pprof_port"`
	PyroscopeEnabled bool   `env:"ENABLE_CONTINUOUS_PROFILING" yaml:"pyroscope_enabled"`
	PyroscopeURL     string `env:"PYROSCOPE_SERVER_URL"        yaml:"pyroscope_url"`
	Environment      string `env:"PYROSCOPE_ENVIRONMENT"       yaml:"environment"`
	Version          string `env:"APP_VERSION"                 yaml:"-"`
}

// SetDefaults applies default values to the config if not set.
func (c *Config) SetDefaults() {
	if c.PprofPort == "" {
		c.PprofPort = defaultPprofPort
	}
	if c.PyroscopeURL == "" {
		c.PyroscopeURL = defaultPyroscopeURL
	}
	if c.Environment == "" {
		c.Environment = defaultEnvironment
	}
	if c.Version == "" {
		c.Version = unknownTagValue
	}
}

// Profiler holds the running profilers. A nil *Profiler is valid and stops nothing.
type Profiler struct {
	pprof     *http.Server
	pyroscope *pyroscope.Profiler
}

// Start launches whichever profilers the config enables.
func Start(cfg Config, serviceName string, log logger.Logger) (*Profiler, error) {
	cfg.SetDefaults()
	p := &Profiler{}

	if cfg.PprofEnabled {
		p.pprof = startPprof(cfg.PprofPort, log)
	}

	if cfg.PyroscopeEnabled {
		profiler, err := pyroscope.Start(pyroscopeConfig(cfg, serviceName))
		if err != nil {
			_ = p.Stop()
			return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
		}
		p.pyroscope = profiler
		log.Info("Pyroscope continuous profiling started",
			logger.String("application", applicationNamePrefix+serviceName),
			logger.String("server", cfg.PyroscopeURL),
			logger.String("environment", cfg.Environment),
		)
	}

	return p, nil
}

// startPprof binds to localhost only.
func startPprof(port string, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	srv := &http.Server{
		Addr:              "localhost:" + port,
		Handler:           mux,
		ReadHeaderTimeout: pprofReadHeaderTimeout,
	}

	go func() {
		log.Info("Starting pprof server", logger.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("pprof server stopped", logger.Error(err))
		}
	}()

	return srv
}

func pyroscopeConfig(cfg Config, serviceName string) pyroscope.Config {
	return pyroscope.Config{
		ApplicationName: applicationNamePrefix + serviceName,
		ServerAddress:   cfg.PyroscopeURL,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
		Tags: map[string]string{
			"environment": cfg.Environment,
			"version":     cfg.Version,
			"hostname":    hostname(),
			"go_version":  runtime.Version(),
		},
	}
}

// Stop stops every running profiler.
func (p *Profiler) Stop() error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.pprof != nil {
		errs = append(errs, p.pprof.Close())
	}
	if p.pyroscope != nil {
		errs = append(errs, p.pyroscope.Stop())
	}
	return errors.Join(errs...)
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return unknownTagValue
	}
	return name
}
