package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Yoga07/safe-farming/config"
	"github.com/Yoga07/safe-farming/node/crypto/threshold"
	"github.com/Yoga07/safe-farming/node/farming"
	"github.com/Yoga07/safe-farming/node/farming/quorum"
	"github.com/Yoga07/safe-farming/node/store"
	ftypes "github.com/Yoga07/safe-farming/types/farming"
)

var (
	configPath = flag.String(
		"config",
		filepath.Join(".", ".config", "config.yml"),
		"the configuration file",
	)
	debug = flag.Bool(
		"debug",
		false,
		"sets log output to debug (verbose)",
	)
	prometheusServer = flag.String(
		"prometheus-server",
		"",
		"overrides the metrics listen address from the config (e.g. localhost:8080)",
	)
	balance = flag.String(
		"balance",
		"",
		"print the persisted balance of an account to stdout and exit",
	)
	nodeInfo = flag.Bool(
		"node-info",
		false,
		"print replica related information and exit",
	)
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := cfg.CreateLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not create logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("farming node failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	quorumCfg := cfg.Farming.Quorum
	if len(quorumCfg.Members) == 0 {
		return errors.New("run: quorum members are required")
	}

	verifier, err := threshold.ParsePublicKeySet(
		quorumCfg.Threshold,
		quorumCfg.MasterPublicKey,
		quorumCfg.Members,
	)
	if err != nil {
		return errors.Wrap(err, "run")
	}

	var key ftypes.ThresholdSigner
	if quorumCfg.SignerIndex != 0 {
		share, err := threshold.ParseKeyShare(
			quorumCfg.SignerIndex,
			quorumCfg.SignerKey,
		)
		if err != nil {
			return errors.Wrap(err, "run")
		}
		key = share
	}

	db := store.NewPebbleDB(logger.Named("store"), cfg.DB)
	defer db.Close()
	farmingStore := store.NewPebbleFarmingStore(db, logger.Named("store"))

	network := quorum.NewLocalNetwork(
		logger.Named("network"),
		nil,
		quorumCfg.VetoThreshold > 0,
	)
	engine, err := farming.NewEngine(
		logger,
		clockwork.NewRealClock(),
		cfg.Farming,
		verifier,
		network,
		key,
		farmingStore,
	)
	if err != nil {
		return errors.Wrap(err, "run")
	}
	if signer := engine.Signer(); signer != nil {
		network.AddSigner(signer)
	}
	network.Attach(engine)

	if err := engine.Load(); err != nil {
		return errors.Wrap(err, "run")
	}

	if *balance != "" {
		fmt.Println(engine.Balance(ftypes.AccountID(*balance)))
		return nil
	}

	if *nodeInfo {
		printNodeInfo(cfg, engine)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsAddress := cfg.MetricsListenAddress
	if *prometheusServer != "" {
		metricsAddress = *prometheusServer
	}
	if metricsAddress != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Fatal(
				"failed to start prometheus server",
				zap.Error(http.ListenAndServe(metricsAddress, mux)),
			)
		}()
	}

	diskErrors := make(chan error, 1)
	if !cfg.DB.InMemoryDONOTUSE {
		store.NewDiskMonitor(*cfg.DB, logger.Named("disk"), diskErrors).Start(ctx)
	}

	if err := engine.Start(ctx); err != nil {
		return errors.Wrap(err, "run")
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-done:
		logger.Info("received shutdown signal")
	case err := <-diskErrors:
		logger.Error("disk monitor triggered shutdown", zap.Error(err))
	}

	cancel()
	return errors.Wrap(engine.Stop(), "run")
}

func printNodeInfo(cfg *config.Config, engine *farming.Engine) {
	fmt.Println("Replica:", cfg.Farming.ReplicaId)
	fmt.Println("Rate Curve:", cfg.Farming.RateCurve.Shape)
	fmt.Println("Capacity:", cfg.Farming.Capacity)
	fmt.Println("Total Usage:", engine.TotalUsage())
	fmt.Println("Current Rate:", engine.CurrentRate().String())
	fmt.Printf(
		"Quorum: %d of %d\n",
		cfg.Farming.Quorum.Threshold,
		len(cfg.Farming.Quorum.Members),
	)
	if cfg.Farming.Quorum.SignerIndex != 0 {
		fmt.Println("Signer Index:", cfg.Farming.Quorum.SignerIndex)
	}
	fmt.Println("Accounts:", len(engine.Accounts()))
}
