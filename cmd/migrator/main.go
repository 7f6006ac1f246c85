package main

import (
	"os"

	"go.uber.org/zap"

	"github.com/rl1809/duka/internal/adapter/storage"
	"github.com/rl1809/duka/internal/config"
	"github.com/rl1809/duka/internal/logger"
)

func main() {
	log := logger.L()
	if len(os.Args) < 2 {
		log.Fatal("usage: migrator up|down|version")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}
	m := &storage.Migrator{Driver: cfg.DBDriver, DSN: cfg.DSN()}

	switch os.Args[1] {
	case "up":
		if err := m.MigrateUp(); err != nil {
			log.Fatal("migration up failed", zap.Error(err))
		}
		log.Info("migration up success")
	case "down":
		if err := m.MigrateDown(); err != nil {
			log.Fatal("migration down failed", zap.Error(err))
		}
		log.Info("migration down success")
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatal("read migration version failed", zap.Error(err))
		}
		log.Info("migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	default:
		log.Fatal("unknown command", zap.String("command", os.Args[1]))
	}
}
