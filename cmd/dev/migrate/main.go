package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"campusbooking/internal/resource"
	"campusbooking/pkg/config"
	"campusbooking/pkg/db"
)

func main() {
	seed := flag.Bool("seed", false, "upsert a small sample resource catalog after migrating")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.MigrationsPath == "" {
		cfg.MigrationsPath = "file://migrations"
	}

	// This uses DIRECT_URL if set.
	if err := db.Migrate(cfg.MigrationsPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "migrate failed: %v\n", err)
		os.Exit(1)
	}

	// Sanity check that the runtime connection opens (DATABASE_URL if set).
	// DSNs are not printed.
	ctx := context.Background()
	pool, err := db.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "runtime db open failed: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	fmt.Println("migrations applied")

	if !*seed {
		return
	}
	repo := resource.NewRepository(pool)
	for _, res := range resource.Sample() {
		saved, err := repo.Upsert(ctx, res)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed %s: %v\n", res.ID, err)
			os.Exit(1)
		}
		fmt.Printf("seeded %s (%s, capacity=%d, approval=%t)\n", saved.Ref(), saved.Name, saved.Capacity(), saved.RequiresApproval)
	}
}
