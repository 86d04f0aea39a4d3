package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/mountly/mountly-backend/internal/config"
	"github.com/mountly/mountly-backend/internal/db"
	"github.com/mountly/mountly-backend/internal/servicearea"
)

// check_zip prints the stored coverage for one or more postal codes,
// straight from the database and bypassing the cache.
func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: check_zip <zip> [zip...]")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := db.Connect(cfg.DatabaseURL); err != nil {
		log.Fatalf("DB connection error: %v", err)
	}
	defer db.Close()

	zips := servicearea.NormalizeZips(os.Args[1:])
	if len(zips) == 0 {
		log.Fatal("no valid 5-digit postal codes given")
	}

	byZip, err := servicearea.NewGormStore(db.DB).CoverageByZips(context.Background(), zips)
	if err != nil {
		log.Fatalf("Query error: %v", err)
	}

	for _, zip := range zips {
		providers := byZip[zip]
		fmt.Printf("=== %s (%d providers) ===\n", zip, len(providers))
		sort.Slice(providers, func(i, j int) bool { return providers[i].AreaName < providers[j].AreaName })
		for _, p := range providers {
			fmt.Printf("  - %s | %s | %s\n", p.WorkerID, p.AreaName, p.AreaID)
		}
		if len(providers) == 0 {
			fmt.Println("  (not covered)")
		}
		fmt.Println()
	}
}
