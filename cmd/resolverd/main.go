package main

import (
	"context"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"fusionswap/internal/chain"
	"fusionswap/internal/config"
	"fusionswap/internal/server"
	"fusionswap/internal/store"
	"fusionswap/internal/swap"
	"fusionswap/internal/timelock"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}
	if level, err := zerolog.ParseLevel(cfg.Service.LogLevel); err == nil {
		log = log.Level(level)
	}

	ctx := context.Background()

	var st store.Store = store.NewMemoryStore()
	if cfg.Service.DatabaseDSN != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Service.DatabaseDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres store error")
		}
		st = pg
	}

	src, resolver, err := buildClient(ctx, cfg.Chains.Source, timelock.RoleSource)
	if err != nil {
		log.Fatal().Err(err).Msg("source chain client error")
	}
	dst, dstResolver, err := buildClient(ctx, cfg.Chains.Destination, timelock.RoleDestination)
	if err != nil {
		log.Fatal().Err(err).Msg("destination chain client error")
	}
	if resolver == (common.Address{}) {
		resolver = dstResolver
	}

	registry := prometheus.NewRegistry()

	deposit, ok := new(big.Int).SetString(cfg.Service.SafetyDepositWei, 10)
	if !ok {
		log.Fatal().Str("value", cfg.Service.SafetyDepositWei).Msg("invalid safety deposit")
	}

	coord, err := swap.New(swap.Config{
		Source:           src,
		Destination:      dst,
		Resolver:         resolver,
		Store:            st,
		Logger:           log,
		Metrics:          swap.NewMetrics(registry),
		RetryPolicy:      cfg.Chains.ToPolicy(),
		FinalityDelay:    cfg.Service.FinalityDelay,
		Timelocks:        cfg.Chains.ToTimelocks(),
		SafetyDeposit:    deposit,
		RejectFloorFills: cfg.Service.RejectFloorFills,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("coordinator error")
	}

	apiServer := server.NewServer(cfg, coord, st, src, dst, registry, log)

	go func() {
		if err := apiServer.Start(); err != nil {
			log.Error().Err(err).Msg("server stopped")
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
}

// buildClient dials a real node when a private key is configured and
// falls back to the in-memory sim otherwise, which is the key-less dev
// mode.
func buildClient(ctx context.Context, cfg config.ChainConfig, role timelock.Role) (chain.Client, common.Address, error) {
	if cfg.PrivateKey == "" {
		return chain.NewSimClient(cfg.ChainID, role), common.Address{}, nil
	}

	signer, err := chain.NewSigner(cfg.PrivateKey)
	if err != nil {
		return nil, common.Address{}, err
	}
	client, err := chain.NewEthClient(ctx, chain.EthClientConfig{
		RPCURL:         cfg.RPCURL,
		FactoryAddress: cfg.FactoryAddress,
		Signer:         signer,
	})
	if err != nil {
		return nil, common.Address{}, err
	}
	return client, signer.Address(), nil
}
