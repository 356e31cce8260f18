package main

import (
	"flag"

	"github.com/jlgore/tagsweep/internal/config"
)

// scanFlags mirrors the configuration keys that can be overridden per run
type scanFlags struct {
	configPath       string
	tag              string
	table            string
	ttl              int64
	batchSize        int
	pageSize         int
	regions          string
	backend          string
	store            string
	duckdbPath       string
	concurrency      int
	viewARN          string
	deadLetterBucket string
	verbose          bool
}

func bindScanFlags(fs *flag.FlagSet) *scanFlags {
	f := &scanFlags{}
	fs.StringVar(&f.configPath, "config", "", "Path to tagsweep.yaml")
	fs.StringVar(&f.tag, "tag", "", "Required tag key")
	fs.StringVar(&f.table, "table", "", "DynamoDB table name")
	fs.Int64Var(&f.ttl, "ttl", 0, "Record TTL in seconds")
	fs.IntVar(&f.batchSize, "batch-size", 0, "Records per batch write (max 25)")
	fs.IntVar(&f.pageSize, "page-size", 0, "Results per discovery page")
	fs.StringVar(&f.regions, "regions", "", "Comma-separated regions, Global, or all")
	fs.StringVar(&f.backend, "backend", "", "Discovery backend (resource-explorer, tagging-api)")
	fs.StringVar(&f.store, "store", "", "Persistence store (dynamodb, duckdb, memory)")
	fs.StringVar(&f.duckdbPath, "duckdb-path", "", "DuckDB file for --store duckdb")
	fs.IntVar(&f.concurrency, "concurrency", 0, "Regions scanned in parallel")
	fs.StringVar(&f.viewARN, "view-arn", "", "Resource Explorer view ARN")
	fs.StringVar(&f.deadLetterBucket, "dead-letter-bucket", "", "S3 bucket for records that could not be written")
	fs.BoolVar(&f.verbose, "verbose", false, "Log every untagged resource")
	return f
}

// apply copies the flags that were set on the command line into cfg
func (f *scanFlags) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "tag":
			cfg.RequiredTag = f.tag
		case "table":
			cfg.TableName = f.table
		case "ttl":
			cfg.TTLSeconds = f.ttl
		case "batch-size":
			cfg.BatchSize = f.batchSize
		case "page-size":
			cfg.PageSize = f.pageSize
		case "regions":
			cfg.Regions = config.SplitList(f.regions)
		case "backend":
			cfg.Backend = f.backend
		case "store":
			cfg.Store = f.store
		case "duckdb-path":
			cfg.DuckDBPath = f.duckdbPath
		case "concurrency":
			cfg.Concurrency = f.concurrency
		case "view-arn":
			cfg.ViewARN = f.viewARN
		case "dead-letter-bucket":
			cfg.DeadLetter.Bucket = f.deadLetterBucket
		}
	})
}

// loadScanConfig parses args and returns the effective configuration
func loadScanConfig(name string, args []string) (*config.Config, *scanFlags, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	f := bindScanFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, nil, err
	}

	f.apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, f, nil
}
