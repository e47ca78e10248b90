// Command repair-carts closes duplicate open carts left behind by races or partial failures.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hanko-field/storefront/internal/di"
	"github.com/hanko-field/storefront/internal/platform/config"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/services"
)

type repairOptions struct {
	dryRun      bool
	limit       int
	concurrency int
}

type repairReport struct {
	Owners      int
	CartsClosed int
	Failed      int
}

func main() {
	var opts repairOptions
	flag.BoolVar(&opts.dryRun, "dry-run", false, "report duplicate carts without closing them")
	flag.IntVar(&opts.limit, "limit", 500, "maximum number of owners to repair")
	flag.IntVar(&opts.concurrency, "concurrency", 8, "owners repaired in parallel")
	flag.Parse()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("repair-carts")

	ctx := observability.WithLogger(context.Background(), logger)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	registry, err := di.OpenRegistry(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open repositories", zap.Error(err))
	}
	container, err := di.NewContainer(ctx, cfg, registry, di.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}
	defer func() {
		if err := container.Close(context.Background()); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	report, err := repair(ctx, registry.Carts(), container.Services.Cart, opts, logger)
	if err != nil {
		logger.Error("repair failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("repair finished",
		zap.Bool("dry_run", opts.dryRun),
		zap.Int("owners", report.Owners),
		zap.Int("carts_closed", report.CartsClosed),
		zap.Int("failed", report.Failed),
	)
	if report.Failed > 0 {
		os.Exit(2)
	}
}

// repair reconciles every owner holding more than one open cart. Per-owner failures are counted, not fatal.
func repair(ctx context.Context, carts repositories.CartRepository, svc services.CartService, opts repairOptions, logger *zap.Logger) (repairReport, error) {
	owners, err := carts.ListOwnersWithDuplicateOpen(ctx, opts.limit)
	if err != nil {
		return repairReport{}, fmt.Errorf("list owners: %w", err)
	}

	concurrency := opts.concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var (
		mu     sync.Mutex
		report = repairReport{Owners: len(owners)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, ownerID := range owners {
		g.Go(func() error {
			if opts.dryRun {
				open, err := carts.ListOpenByOwner(gctx, ownerID)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					report.Failed++
					logger.Warn("list open carts failed", zap.String("owner_id", ownerID), zap.Error(err))
					return nil
				}
				if len(open) > 1 {
					report.CartsClosed += len(open) - 1
				}
				logger.Info("duplicate open carts", zap.String("owner_id", ownerID), zap.Int("open", len(open)))
				return nil
			}

			result, err := svc.ReconcileOwner(gctx, ownerID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				logger.Warn("reconcile failed", zap.String("owner_id", ownerID), zap.Error(err))
				return nil
			}
			report.CartsClosed += len(result.ClosedIDs)
			logger.Info("reconciled owner",
				zap.String("owner_id", ownerID),
				zap.String("kept_id", result.KeptID),
				zap.Strings("closed_ids", result.ClosedIDs),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, ctx.Err()
}
