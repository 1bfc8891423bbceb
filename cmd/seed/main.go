package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/Domenick1991/railbooking/config"
	"github.com/Domenick1991/railbooking/internal/repository"
	"github.com/Domenick1991/railbooking/internal/seed"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	topologyPath := flag.String("topology", "", "YAML topology file; the demo topology is used when empty")
	flag.Parse()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	topo := seed.Demo()
	if *topologyPath != "" {
		data, err := os.ReadFile(*topologyPath)
		if err != nil {
			log.Fatalf("read topology: %v", err)
		}
		if topo, err = seed.ParseTopology(data); err != nil {
			log.Fatalf("%v", err)
		}
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := repository.ApplySchema(ctx, pool); err != nil {
		log.Fatalf("apply schema: %v", err)
	}

	seats, err := seed.Apply(ctx, seed.PostgresTarget(pool), topo)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	log.Printf("seed complete: %d trains, %d users, %d seats", len(topo.Trains), len(topo.Users), seats)
}
