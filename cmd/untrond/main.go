package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ultrasoundlabs/untron-v1/config"
	"github.com/ultrasoundlabs/untron-v1/native/untron"
	"github.com/ultrasoundlabs/untron-v1/observability/logging"
	"github.com/ultrasoundlabs/untron-v1/rpc"
	"github.com/ultrasoundlabs/untron-v1/storage"
)

const (
	authTokenEnv    = "UNTRON_RPC_TOKEN"
	shutdownTimeout = 10 * time.Second
)

// defaultVault is the escrow account used when the config does not name one.
var defaultVault = [20]byte{0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE, 0xEE}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("untrond", cfg.Env, cfg.LogFile)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	engine, err := buildEngine(cfg, db, logger)
	if err != nil {
		logger.Error("Failed to initialise engine", slog.Any("error", err))
		os.Exit(1)
	}

	broker := rpc.NewEventBroker()
	engine.SetEmitter(broker)

	authToken := cfg.RPCAuthToken
	if env := os.Getenv(authTokenEnv); env != "" {
		authToken = env
	}
	server := rpc.NewServer(engine, broker, logger, rpc.ServerConfig{
		AuthToken:      authToken,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Handle("/rpc", server)
	router.Get("/ws/events", server.HandleEventsWS)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting JSON-RPC server", "addr", cfg.ListenAddress)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("Shutdown failed", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server exited", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

// buildEngine opens the state store and applies bootstrap parameters from the
// config. Parameters already persisted from a previous run take precedence so
// owner retunes over RPC survive restarts.
func buildEngine(cfg *config.Config, db storage.Database, logger *slog.Logger) (*untron.Engine, error) {
	store := untron.NewStateStore(db)

	vault := defaultVault
	if addr, ok, err := cfg.VaultAddress(); err != nil {
		return nil, err
	} else if ok {
		vault = addr
	}
	engine := untron.NewEngine(store, untron.NewLedgerTransfers(store, vault))

	owner, ok, err := cfg.OwnerAddress()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("config: Owner address is required")
	}
	engine.SetOwner(owner)

	core := engine.CoreVariables()
	if core.MaxOrderSize.Sign() == 0 {
		maxOrderSize, err := cfg.MaxOrderSizeAmount()
		if err != nil {
			return nil, err
		}
		collateral, err := cfg.RequiredCollateralAmount()
		if err != nil {
			return nil, err
		}
		vars := untron.CoreVariables{
			MaxOrderSize:       maxOrderSize,
			RequiredCollateral: collateral,
			OrderTTLMillis:     cfg.OrderTTLMillis,
		}
		chain := engine.ChainState()
		if err := engine.SetCoreVariables(owner, chain.BlockID, chain.ActionTip, chain.LatestIncludedAction, chain.StateHash, vars); err != nil {
			return nil, err
		}
		feePoint, err := cfg.FeePointAmount()
		if err != nil {
			return nil, err
		}
		if err := engine.SetFeesVariables(owner, cfg.RelayerFee, feePoint); err != nil {
			return nil, err
		}
		logger.Info("Applied bootstrap parameters",
			"maxOrderSize", maxOrderSize.String(),
			"orderTtlMillis", cfg.OrderTTLMillis,
			"relayerFee", cfg.RelayerFee)
	}

	if relayer, ok, err := cfg.TrustedRelayerAddress(); err != nil {
		return nil, err
	} else if ok {
		if err := engine.SetZKVariables(owner, relayer, nil); err != nil {
			return nil, err
		}
	}

	return engine, nil
}
