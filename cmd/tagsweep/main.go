package main

import (
	"fmt"
	"log"
	"os"
)

// Build-time variables set by GoReleaser
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "scan":
		if err := runScan(os.Args[2:]); err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
	case "config":
		runConfig(os.Args[2:])
	case "init":
		runInit(os.Args[2:])
	case "purge":
		runPurge(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("tagsweep %s (commit: %s, built: %s)\n", version, commit, date)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("🏷️  tagsweep - find AWS resources missing a required tag")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  tagsweep scan --tag CostCenter --regions Global,us-east-1")
	fmt.Println("  tagsweep scan --regions all --concurrency 4")
	fmt.Println("  tagsweep scan --backend tagging-api --store duckdb --duckdb-path inventory.duckdb")
	fmt.Println("  tagsweep scan --store memory --verbose")
	fmt.Println("  tagsweep purge --duckdb-path inventory.duckdb")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  scan     - Scan regions and record untagged resources")
	fmt.Println("  config   - Show the effective configuration")
	fmt.Println("  init     - Write an example tagsweep.yaml")
	fmt.Println("  purge    - Delete expired records from a DuckDB inventory")
	fmt.Println("  version  - Show version information")
	fmt.Println()
	fmt.Println("Configuration is read from tagsweep.yaml, then environment variables")
	fmt.Println("(DESIRED_TAG, DDB_TABLE_NAME, TTL_SECONDS, BATCH_SIZE, ...), then flags.")
}
