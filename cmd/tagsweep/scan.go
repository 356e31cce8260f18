package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"

	"github.com/jlgore/tagsweep/internal/buffer"
	"github.com/jlgore/tagsweep/internal/config"
	"github.com/jlgore/tagsweep/internal/inventory"
	"github.com/jlgore/tagsweep/internal/query"
	"github.com/jlgore/tagsweep/internal/store"
	"github.com/jlgore/tagsweep/pkg/scan"
)

func runScan(args []string) error {
	cfg, flags, err := loadScanConfig("scan", args)
	if err != nil {
		return err
	}

	logger := newLogger(os.Stderr, flags.verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	scanID := uuid.New().String()

	fmt.Printf("Starting scan for resources missing tag: %s\n", cfg.RequiredTag)
	fmt.Printf("Target table: %s | TTL: %ds\n", targetName(cfg), cfg.TTLSeconds)

	source, err := newSource(ctx, awsCfg, cfg)
	if err != nil {
		return err
	}

	writer, closeStore, err := newWriter(awsCfg, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	bufOpts := []buffer.Option{
		buffer.WithCapacity(cfg.BatchSize),
		buffer.WithLogger(logger),
	}
	if cfg.DeadLetter.Enabled() {
		bufOpts = append(bufOpts, buffer.WithDeadLetter(
			store.NewS3DeadLetterFromConfig(awsCfg, cfg.DeadLetter.Bucket, cfg.DeadLetter.Prefix, scanID),
		))
	}

	regions := scan.ExpandRegions(ctx, ec2.NewFromConfig(awsCfg), cfg.Regions, logger)

	orchestrator := scan.New(
		source,
		inventory.NewBuilder(cfg.TTL(), inventory.WithScanID(scanID)),
		func() *buffer.Buffer { return buffer.New(writer, bufOpts...) },
		scan.WithReporter(scan.NewConsoleReporter(os.Stdout)),
		scan.WithLogger(logger),
		scan.WithConcurrency(cfg.Concurrency),
		scan.WithScanID(scanID),
	)

	orchestrator.Run(ctx, cfg.RequiredTag, regions)
	return nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func targetName(cfg *config.Config) string {
	switch cfg.Store {
	case config.StoreDuckDB:
		return cfg.DuckDBPath
	case config.StoreMemory:
		return "memory (dry run)"
	default:
		return cfg.TableName
	}
}

func newSource(ctx context.Context, awsCfg aws.Config, cfg *config.Config) (query.Source, error) {
	opts := []query.Option{
		query.WithPageSize(cfg.PageSize),
		query.WithRateLimit(cfg.PagesPerSecond),
	}

	switch cfg.Backend {
	case config.BackendTaggingAPI:
		identity, err := sts.NewFromConfig(awsCfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
		if err != nil {
			return nil, fmt.Errorf("failed to get caller identity: %w", err)
		}
		return query.NewTaggingSourceFromConfig(awsCfg, aws.ToString(identity.Account), opts...), nil
	default:
		if cfg.ViewARN != "" {
			opts = append(opts, query.WithViewARN(cfg.ViewARN))
		}
		return query.NewExplorerSourceFromConfig(awsCfg, cfg.ExplorerRegion, opts...), nil
	}
}

func newWriter(awsCfg aws.Config, cfg *config.Config) (store.Writer, func(), error) {
	switch cfg.Store {
	case config.StoreDuckDB:
		db, err := store.NewDuckDBStore(cfg.DuckDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s: %w", cfg.DuckDBPath, err)
		}
		return db, func() { db.Close() }, nil
	case config.StoreMemory:
		return store.NewMemoryStore(), func() {}, nil
	default:
		return store.NewDynamoStoreFromConfig(awsCfg, cfg.TableName), func() {}, nil
	}
}
