package main

import (
	"context"
	"flag"
	"time"

	"github.com/joho/godotenv"

	"github.com/nuevpro/ventas/config"
	"github.com/nuevpro/ventas/internal/logger"
	pgrepo "github.com/nuevpro/ventas/internal/repositories/postgres"
	"github.com/nuevpro/ventas/internal/seed"
)

func main() {
	path := flag.String("file", "seed/catalog.yaml", "catalog YAML to load")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.LoadApp()
	log := logger.New(cfg.LogLevel)

	cat, err := seed.LoadFile(*path)
	if err != nil {
		log.WithError(err).Fatal("invalid seed file")
	}

	if err := config.InitPostgres(log); err != nil {
		log.WithError(err).Fatal("PostgreSQL init error")
	}
	if err := pgrepo.Migrate(config.PostgresDB); err != nil {
		log.WithError(err).Fatal("PostgreSQL migration error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	defer config.ClosePostgres()

	res, err := seed.Apply(ctx, cat, pgrepo.NewScenarioRepo(config.PostgresDB), pgrepo.NewStatsRepo(config.PostgresDB), log)
	if err != nil {
		log.WithError(err).Fatal("seeding failed")
	}
	log.WithField("file", *path).Infof("seeded %d scenarios and %d achievements", res.Scenarios, res.Achievements)
}
