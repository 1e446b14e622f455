// Command proxycache runs the forward HTTP/1.x caching proxy: a TCP
// acceptor, the shared response cache, and the optional audit log and
// admin API, wired together per the loaded configuration.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fenwicklabs/proxycache/config"
	"github.com/fenwicklabs/proxycache/proxylog"
	"github.com/fenwicklabs/proxycache/server"
)

var (
	configFlag      string
	portFlag        int
	cacheSlotsFlag  int
	logFileFlag     string
	logLevelFlag    string
	adminPortFlag   int
	auditDBPathFlag string
	verbosityTrace  bool
)

func init() {
	flag.StringVar(&configFlag, "config", "", "Path to YAML config file")
	flag.IntVar(&portFlag, "port", 0, "Port to listen on (overrides config; 0 means use config/default)")
	flag.IntVar(&cacheSlotsFlag, "cache-slots", 0, "Number of cache slots (overrides config; 0 means use config/default)")
	flag.StringVar(&logFileFlag, "log-file", "", "Log file to use in addition to stdout (overrides config)")
	flag.StringVar(&logLevelFlag, "log-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	flag.IntVar(&adminPortFlag, "admin-port", -1, "Admin API port, 0 disables it (overrides config; -1 means use config/default)")
	flag.StringVar(&auditDBPathFlag, "audit-db", "", "SQLite path for the audit log, empty disables it (overrides config)")
	flag.BoolVar(&verbosityTrace, "vv", false, "Verbosity: trace logging")
}

func main() {
	os.Setenv("TZ", "UTC")
	flag.Parse()

	cfg, err := config.Load(configFlag)
	if err != nil {
		panic(err)
	}
	applyFlagOverrides(&cfg)

	level := config.ParseLogLevel(cfg.LogLevel)
	if verbosityTrace {
		level = zerolog.TraceLevel
	}

	instanceID := uuid.NewString()
	log, err := proxylog.New(cfg.LogPath, level, instanceID)
	if err != nil {
		panic(err)
	}

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("ERROR could not start server")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("ERROR server exited")
	}
	srv.Shutdown()
}

func applyFlagOverrides(cfg *config.Config) {
	if portFlag != 0 {
		cfg.ListenPort = portFlag
	}
	if cacheSlotsFlag != 0 {
		cfg.CacheSlots = cacheSlotsFlag
	}
	if logFileFlag != "" {
		cfg.LogPath = logFileFlag
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}
	if adminPortFlag != -1 {
		cfg.AdminPort = adminPortFlag
	}
	if auditDBPathFlag != "" {
		cfg.AuditDBPath = auditDBPathFlag
	}
}
