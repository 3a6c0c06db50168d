// Command migrate creates or updates the database schema and exits. Useful
// for CI and for provisioning a database before the first server start.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/ignite/opinion-monitor/internal/config"
	"github.com/ignite/opinion-monitor/internal/pkg/logger"
	"github.com/ignite/opinion-monitor/internal/store"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("load config failed", "path", *configPath, "error", err.Error())
		os.Exit(1)
	}

	st, err := store.Open(cfg.Database.DSN(), 2)
	if err != nil {
		logger.Error("open database failed", "error", err.Error())
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := st.EnsureSchema(ctx); err != nil {
		logger.Error("migration failed", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("schema up to date", "database", cfg.Database.Database)
}
