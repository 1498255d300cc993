package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"TreasuryCycler/internal/chain"
	"TreasuryCycler/internal/config"
	"TreasuryCycler/internal/cycle"
	"TreasuryCycler/internal/logging"
	"TreasuryCycler/internal/metrics"
	"TreasuryCycler/internal/notifier"
	"TreasuryCycler/internal/recorder"
	"TreasuryCycler/internal/scheduler"
	"TreasuryCycler/internal/state"
	"TreasuryCycler/internal/venue"
)

func main() {
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	log := logging.New("info")
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log = logging.New(cfg.App.LogLevel)
	log.Info().Str("config", cfgPath).Msg("TreasuryCycler starting")
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config validation")
	}

	// Solana identity
	owner, err := chain.ParsePublicKey(cfg.Solana.WalletPublicKey)
	if err != nil {
		log.Fatal().Err(err).Msg("wallet public key")
	}
	usdcMint, err := chain.ParsePublicKey(cfg.Solana.USDCMint)
	if err != nil {
		log.Fatal().Err(err).Msg("usdc mint")
	}
	signer, err := chain.LoadPrivateKey()
	if err != nil {
		log.Fatal().Err(err).Msg("load signing key")
	}
	if !signer.PublicKey().Equals(owner) {
		log.Fatal().Str("signer", signer.PublicKey().String()).Msg("signing key does not match wallet public key")
	}

	commit := chain.ParseCommitment(cfg.Solana.Commitment)
	rpcClient := rpc.New(cfg.Solana.RPCURL)
	treasury := chain.NewTreasury(rpcClient, owner, usdcMint, commit)
	jupiter := chain.NewJupiterClient(rpcClient, signer, commit, chain.JupiterOptions{
		Base:        cfg.Jupiter.BaseURL,
		OutputMint:  cfg.Solana.USDCMint,
		SlippageBps: cfg.Jupiter.SlippageBps,
		Proxy:       cfg.HTTP.Proxy,
		Timeout:     cfg.HTTPTimeout(),
	})
	router := chain.NewRouter(rpcClient, signer, usdcMint, commit)

	// Trading venue
	tv, err := venue.New(cfg.Trading.Venue, venue.Options{
		APIBase:    cfg.Exchange.APIBase,
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		Subaccount: cfg.Exchange.Subaccount,
		Proxy:      cfg.HTTP.Proxy,
		Timeout:    cfg.HTTPTimeout(),
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init venue")
	}
	log.Info().Str("venue", tv.Name()).Str("symbol", cfg.Trading.Symbol).Msg("trading venue ready")

	store := state.NewFileStore(cfg.App.StateFile, log)
	if cfg.Routing.DepositAddress == "" {
		log.Warn().Msg("no deposit address configured, settlement balance will only be carried")
	}

	orch := cycle.New(treasury, jupiter, router, tv, store, cycle.Settings{
		Symbol:             cfg.Trading.Symbol,
		Notional:           decimal.NewFromFloat(cfg.Trading.NotionalUSDC),
		Leverage:           cfg.Trading.Leverage,
		Subaccount:         cfg.Exchange.Subaccount,
		FeeReserve:         decimal.NewFromFloat(cfg.Solana.FeeReserveSOL),
		RoutingThreshold:   decimal.NewFromFloat(cfg.Routing.MinTransferUSDC),
		RoutingDestination: cfg.Routing.DepositAddress,
		Lookback:           cfg.Trading.Lookback,
		// a swap or transfer includes confirmation polling
		CallTimeout: 3 * cfg.HTTPTimeout(),
	}, log)

	// Recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Metrics
	if cfg.App.MetricsAddr != "" {
		srv := metrics.Serve(cfg.App.MetricsAddr)
		defer srv.Close()
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics endpoint started")
	}

	// Signals stop scheduling and polling. Cycles get their own context so an
	// in-flight one can finish its transfers and save.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	var n notifier.Notifier = notifier.NoopNotifier{}
	var tn *notifier.TelegramNotifier
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.HTTP.Proxy, log)
		n = tn
	}

	sched := scheduler.NewScheduler(runCtx, orch, store, n, rec, cfg.Trading.Symbol, log)
	if err := sched.Register(cfg.Interval()); err != nil {
		log.Fatal().Err(err).Msg("register cycle task")
	}
	sched.Start()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	if cfg.StartupRun() {
		log.Info().Msg("running first cycle now")
		sched.TriggerAsync("startup")
	}

	log.Info().Dur("interval", cfg.Interval()).Msg("TreasuryCycler is running. Press Ctrl+C to stop.")
	<-ctx.Done()

	log.Info().Msg("shutdown signal received, waiting for in-flight cycle")
	sched.Shutdown(5*time.Minute, 30*time.Second, cancelRun)
	log.Info().Msg("TreasuryCycler stopped")
}
