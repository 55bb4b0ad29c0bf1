package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/raffleprotocol/raffle-indexer/buildinfo"
	"github.com/raffleprotocol/raffle-indexer/internal/api"
	"github.com/raffleprotocol/raffle-indexer/internal/chain"
	"github.com/raffleprotocol/raffle-indexer/internal/codec"
	"github.com/raffleprotocol/raffle-indexer/internal/config"
	"github.com/raffleprotocol/raffle-indexer/internal/eventfeed"
	"github.com/raffleprotocol/raffle-indexer/internal/indexer"
	"github.com/raffleprotocol/raffle-indexer/internal/logging"
	"github.com/raffleprotocol/raffle-indexer/internal/metrics"
	"github.com/raffleprotocol/raffle-indexer/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the indexer loop and the read API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logging.Setup(buildinfo.Version, cfg.LogDebug, cfg.LogHuman)
	log.Info().Str("database_url", cfg.RedactedDatabaseURL()).Msg("starting raffleindexer")

	if err := metrics.SetupInstrumentation(cfg.MetricsAddr, "raffleindexer"); err != nil {
		return fmt.Errorf("setting up instrumentation: %w", err)
	}

	ctx := context.Background()
	pool, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()

	client, err := chain.Dial(cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("dialing rpc endpoint: %w", err)
	}
	rpc := chain.New(client, cfg.RPCTimeout())

	gotChainID, err := rpc.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("fetching chain id: %w", err)
	}
	if int64(gotChainID) != cfg.ChainID {
		return fmt.Errorf("chain id mismatch: configured %d, node reports %d", cfg.ChainID, gotChainID)
	}

	abis, err := codec.LoadArtifacts(cfg.ArtifactsDir)
	if err != nil {
		return fmt.Errorf("loading abi artifacts: %w", err)
	}
	decoder := codec.NewDecoder(abis)

	feedCfg := eventfeed.DefaultConfig()
	feedCfg.MaxBlocksPerBatch = uint64(cfg.IndexerBatchSize)

	var provider *common.Address
	if cfg.HasProvider() && abis.Provider == nil {
		log.Warn().Msg("randomness provider address configured without a provider.json artifact; provider events are not indexed")
	}
	if cfg.HasProvider() && abis.Provider != nil {
		a := cfg.ProviderAddress()
		provider = &a
	}

	feed, err := eventfeed.New(rpc, decoder, cfg.FactoryAddress(), provider, feedCfg)
	if err != nil {
		return fmt.Errorf("constructing event feed: %w", err)
	}

	idxConfig := indexer.Config{
		FactoryAddress:     cfg.FactoryAddress(),
		ProviderAddress:    provider,
		StartBlock:         uint64(cfg.StartBlock),
		BatchSize:          uint64(cfg.IndexerBatchSize),
		PollInterval:       cfg.PollInterval(),
		FailedBatchBackoff: time.Second,
	}
	ix, err := indexer.New(pool, rpc, feed, idxConfig)
	if err != nil {
		return fmt.Errorf("constructing indexer: %w", err)
	}
	if err := ix.StartSync(); err != nil {
		return fmt.Errorf("starting indexer: %w", err)
	}

	gw := api.NewPostgresGateway(pool, cfg.ExplorerBaseURL)
	ctrl := api.NewRaffleController(gw)
	rateLimit, err := api.RateLimit(20, time.Second)
	if err != nil {
		return fmt.Errorf("constructing rate limiter: %w", err)
	}
	router := api.NewRouter(ctrl, rateLimit)
	httpServer := &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      router.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Str("bind_addr", cfg.BindAddr).Msg("read api server failed")
		}
	}()

	waitForShutdown(func() {
		ix.StopSync()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutting down read api server")
		}
	})

	return nil
}

// waitForShutdown blocks until an OS termination signal arrives, then runs
// cleanup before returning, matching spec.md §6's exit contract: "Respects
// process termination signals by finishing the current commit."
func waitForShutdown(cleanup func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("received shutdown signal, finishing current batch")
	cleanup()
}
