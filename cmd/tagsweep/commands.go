package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jlgore/tagsweep/internal/config"
	"github.com/jlgore/tagsweep/internal/store"
)

func runConfig(args []string) {
	cfg, _, err := loadScanConfig("config", args)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		log.Fatalf("Failed to render configuration: %v", err)
	}
	fmt.Print(string(out))
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "tagsweep.yaml", "Where to write the configuration")
	fs.Parse(args)

	if err := config.InitializeConfigFile(*path); err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}
	fmt.Printf("✅ Wrote %s\n", *path)
}

func runPurge(args []string) {
	fs := flag.NewFlagSet("purge", flag.ExitOnError)
	path := fs.String("duckdb-path", config.Default().DuckDBPath, "DuckDB inventory file")
	fs.Parse(args)

	if _, err := os.Stat(*path); err != nil {
		log.Fatalf("Cannot open inventory: %v", err)
	}

	db, err := store.NewDuckDBStore(*path)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", *path, err)
	}
	defer db.Close()

	n, err := db.PurgeExpired(context.Background(), time.Now())
	if err != nil {
		log.Fatalf("Purge failed: %v", err)
	}
	fmt.Printf("🧹 Removed %d expired records from %s\n", n, *path)
}
