// Command poolcored runs the proof-of-contribution pool core: Activity
// Ingest and Admin Ops as library entry points for a boundary HTTP layer
// (out of scope here, §1), plus the Liveness Sweeper, Reward Engine, and
// Withdrawal Pipeline as periodic background tasks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/contribpool/poolcore/internal/admin"
	"github.com/contribpool/poolcore/internal/chain"
	"github.com/contribpool/poolcore/internal/config"
	"github.com/contribpool/poolcore/internal/ephemeral/redisstore"
	"github.com/contribpool/poolcore/internal/ingest"
	"github.com/contribpool/poolcore/internal/ledger/postgres"
	"github.com/contribpool/poolcore/internal/migrations"
	"github.com/contribpool/poolcore/internal/periodic"
	"github.com/contribpool/poolcore/internal/procconfig"
	"github.com/contribpool/poolcore/internal/retention"
	"github.com/contribpool/poolcore/internal/reward"
	"github.com/contribpool/poolcore/internal/sweeper"
	"github.com/contribpool/poolcore/internal/withdrawal"
)

var configFlag = &cli.StringFlag{
	Name:     "config",
	Aliases:  []string{"c"},
	Usage:    "path to the static TOML process configuration",
	Required: true,
}

func main() {
	app := &cli.App{
		Name:  "poolcored",
		Usage: "proof-of-contribution pool core daemon",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "apply pending schema migrations and exit",
				Flags:  []cli.Flag{configFlag},
				Action: runMigrate,
			},
			{
				Name:   "run",
				Usage:  "start the ingest/sweeper/reward/withdrawal daemon",
				Flags:  []cli.Flag{configFlag},
				Action: runDaemon,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runMigrate(c *cli.Context) error {
	cfg, err := procconfig.Load(c.String("config"))
	if err != nil {
		return err
	}
	return migrations.Apply(cfg.PostgresDSN)
}

func runDaemon(c *cli.Context) error {
	logger := log.New("component", "poolcored")
	cfg, err := procconfig.Load(c.String("config"))
	if err != nil {
		return err
	}

	ls, err := postgres.Open(cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open ledger store: %w", err)
	}

	es, err := redisstore.Open(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("open ephemeral store: %w", err)
	}
	defer es.Close()

	cp := config.New(ls)

	endpoints := make([]chain.Endpoint, 0, len(cfg.Chain.Endpoints))
	for _, e := range cfg.Chain.Endpoints {
		endpoints = append(endpoints, chain.NewEndpoint(e.URL, e.RatePerSec, e.Burst))
	}
	cg, err := chain.NewGateway(chain.Config{
		Endpoints:      endpoints,
		KeystorePath:   cfg.Chain.KeystorePath,
		AccountAddress: cfg.Chain.AccountAddress,
		Passphrase:     cfg.Chain.Passphrase,
		ChainID:        cfg.Chain.ChainID,
	})
	if err != nil {
		return fmt.Errorf("init chain gateway: %w", err)
	}

	ig := ingest.New(ls, es, cp)
	_ = ig // exposed to the boundary HTTP layer (out of scope here, §1)

	ao := admin.New(ls, cp)
	_ = ao // exposed to the boundary HTTP layer (out of scope here, §1)

	sw := sweeper.New(ls, cp)
	re := reward.New(ls, cp, reward.ActivityRateStrategy{})
	wp := withdrawal.New(ls, cp, cg)
	rt := retention.New(ls, cp)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rt.Start(ctx, cfg.RetentionSchedule); err != nil {
		return fmt.Errorf("start retention job: %w", err)
	}
	defer rt.Stop()

	snap, err := cp.Get(ctx)
	if err != nil {
		return fmt.Errorf("initial config snapshot: %w", err)
	}

	group, gctx := periodic.NewGroup(ctx)
	group.Go(sweeper.Interval(snap.OfflineThresholdSeconds), "liveness-sweep", sw.Sweep)
	group.Go(withdrawal.SettlementInterval, "withdrawal-settlement", wp.RunSettlementTick)
	group.Go(time.Duration(snap.RewardIntervalMinutes)*time.Minute, "reward-cycle", func(ctx context.Context) error {
		s, err := cp.Get(ctx)
		if err != nil {
			return err
		}
		return re.RunCycle(ctx, s.RewardIntervalMinutes)
	})

	logger.Info("poolcored running", "postgres", "connected", "redis", "connected")
	<-gctx.Done()
	return group.Wait()
}
