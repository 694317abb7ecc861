// Package main provides the openclawd daemon - the self-custodial Dogecoin
// wallet that holds keys for an autonomous agent and gates every outbound
// spend through the policy layer.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/quackstro/openclaw-doge/internal/alerts"
	"github.com/quackstro/openclaw-doge/internal/approval"
	"github.com/quackstro/openclaw-doge/internal/audit"
	"github.com/quackstro/openclaw-doge/internal/chain"
	"github.com/quackstro/openclaw-doge/internal/config"
	"github.com/quackstro/openclaw-doge/internal/htlc"
	"github.com/quackstro/openclaw-doge/internal/keys"
	"github.com/quackstro/openclaw-doge/internal/p2p"
	"github.com/quackstro/openclaw-doge/internal/policy"
	"github.com/quackstro/openclaw-doge/internal/provider"
	"github.com/quackstro/openclaw-doge/internal/registry"
	"github.com/quackstro/openclaw-doge/internal/spend"
	"github.com/quackstro/openclaw-doge/internal/wallet"
	"github.com/quackstro/openclaw-doge/pkg/helpers"
	"github.com/quackstro/openclaw-doge/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

// passphraseEnv names the environment variable carrying the keystore
// passphrase. Interactive prompting belongs to the chat front-end, not the
// daemon.
const passphraseEnv = "OPENCLAW_PASSPHRASE"

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.openclaw", "Data directory")
		testnet     = flag.Bool("testnet", false, "Run on testnet (separate network and data)")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("openclawd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	// Testnet keeps its own data subtree.
	effectiveDataDir := *dataDir
	if *testnet {
		effectiveDataDir = filepath.Join(*dataDir, "testnet")
	}

	cfg, err := config.LoadConfig(effectiveDataDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}
	if *testnet {
		cfg.NetworkType = chain.Testnet
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	log = logging.New(&logging.Config{Level: cfg.Logging.Level, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)
	log.Info("Config loaded", "path", config.ConfigPath(effectiveDataDir))

	// The registry derivation must match the pinned table before anything
	// announces to it.
	if err := registry.SelfCheck(); err != nil {
		log.Fatal("Registry self-check failed", "error", err)
	}

	params := chain.MustGet(cfg.NetworkType)
	dataPath := config.ExpandPath(cfg.Storage.DataDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Keystore: decrypt the seed and derive the spending key. The signer is
	// the only holder of raw key bytes and is zeroized on exit.
	signer, err := openSigner(dataPath, params, log)
	if err != nil {
		log.Fatal("Failed to open keystore", "error", err)
	}
	defer signer.Close()
	walletAddress := signer.Address()
	log.Info("Keystore unlocked", "address", walletAddress, "network", cfg.NetworkType)

	// Singletons, constructed once and passed explicitly.
	utxoStore, err := wallet.NewStore(dataPath, walletAddress, log)
	if err != nil {
		log.Fatal("Failed to open utxo store", "error", err)
	}
	approvalQueue, err := approval.NewQueue(dataPath, log)
	if err != nil {
		log.Fatal("Failed to open approval queue", "error", err)
	}
	auditLog, err := audit.NewLog(dataPath, log)
	if err != nil {
		log.Fatal("Failed to open audit log", "error", err)
	}
	alertState, err := alerts.NewManager(dataPath, log)
	if err != nil {
		log.Fatal("Failed to open alert state", "error", err)
	}

	chainData := provider.NewBlockbookProvider(cfg.ProviderURL(), cfg.ProviderTimeout())

	policyEngine, err := policy.NewEngine(cfg.PolicyTiers())
	if err != nil {
		log.Fatal("Invalid policy configuration", "error", err)
	}

	discoverer := p2p.NewDiscoverer(params, nil, log)
	broadcaster := p2p.NewBroadcaster(params, discoverer, version, log)
	if cfg.Relay.FanOut > 0 {
		broadcaster.FanOut = cfg.Relay.FanOut
	}

	htlcStore, err := openHTLCStore(cfg, dataPath)
	if err != nil {
		log.Fatal("Failed to open htlc record store", "error", err)
	}
	defer htlcStore.Close()
	htlcManager := htlc.NewConsumerManager(htlcStore, params, log)
	defer htlcManager.Close()

	spendService := spend.NewService(&spend.Config{
		Params:   params,
		Signer:   signer,
		Address:  walletAddress,
		Policy:   policyEngine,
		UTXOs:    utxoStore,
		Queue:    approvalQueue,
		Audit:    auditLog,
		Relay:    broadcaster,
		FeePerKB: cfg.Relay.FeePerKB,
		Log:      log,
	})

	printBanner(log, cfg, walletAddress)

	// Background maintenance: refresh the cache, advance HTLC lifecycles,
	// process approval expiries, and re-arm alerts on recovery.
	go maintenanceLoop(ctx, cfg, log, utxoStore, chainData, htlcManager, spendService, alertState)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("Shutting down...")
	cancel()
	log.Info("Goodbye!")
}

// openSigner loads the encrypted seed (creating one on first run) and
// derives the wallet's spending key.
func openSigner(dataPath string, params *chain.Params, log *logging.Logger) (*keys.Signer, error) {
	passphrase := os.Getenv(passphraseEnv)
	if passphrase == "" {
		log.Fatalf("Keystore passphrase required: set %s", passphraseEnv)
	}

	seedPath := filepath.Join(dataPath, "keystore", "seed.json")
	encrypted, err := keys.LoadEncryptedSeed(seedPath)
	if errors.Is(err, os.ErrNotExist) {
		mnemonic, genErr := keys.GenerateMnemonic()
		if genErr != nil {
			return nil, genErr
		}
		encrypted, genErr = keys.EncryptMnemonic(mnemonic, passphrase)
		if genErr != nil {
			return nil, genErr
		}
		if genErr := keys.SaveEncryptedSeed(encrypted, seedPath); genErr != nil {
			return nil, genErr
		}
		log.Warn("New wallet seed generated", "path", seedPath)
		return keys.NewSignerFromMnemonic(mnemonic, params, 0, 0)
	}
	if err != nil {
		return nil, err
	}

	mnemonic, err := keys.DecryptMnemonic(encrypted, passphrase)
	if err != nil {
		return nil, err
	}
	return keys.NewSignerFromMnemonic(mnemonic, params, 0, 0)
}

// openHTLCStore selects the configured record store backend.
func openHTLCStore(cfg *config.Config, dataPath string) (htlc.RecordStore, error) {
	if cfg.Storage.HTLCStore == "sqlite" {
		return htlc.NewSQLiteStore(dataPath)
	}
	return htlc.NewFileStore(dataPath)
}

// maintenanceLoop drives the periodic work. All chain-data calls go through
// the provider; failures are logged and retried on the next tick.
func maintenanceLoop(
	ctx context.Context,
	cfg *config.Config,
	log *logging.Logger,
	utxoStore *wallet.Store,
	chainData provider.ChainDataProvider,
	htlcManager *htlc.Manager,
	spendService *spend.Service,
	alertState *alerts.Manager,
) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := utxoStore.Refresh(ctx, chainData); err != nil {
			log.Warn("UTXO refresh failed", "error", err)
		}
		if err := htlcManager.Tick(ctx, chainData); err != nil {
			log.Warn("HTLC tick failed", "error", err)
		}
		spendService.ProcessExpiries(ctx)

		balance := utxoStore.Balance()
		if alertState.CheckRecovery(balance.TotalKoinu) {
			log.Info("Balance recovered above alert threshold")
		}
		if balance.TotalKoinu < cfg.Alerts.ThresholdKoinu &&
			alertState.ShouldAlertWithInterval(cfg.Alerts.IntervalHours) {
			log.Warn("Balance below threshold",
				"balance", helpers.KoinuToDoge(balance.TotalKoinu),
				"threshold", helpers.KoinuToDoge(cfg.Alerts.ThresholdKoinu))
			alertState.MarkNotified(balance.TotalKoinu)
		}

		log.Info("Status",
			"balance", helpers.KoinuToDoge(balance.TotalKoinu),
			"confirmed", helpers.KoinuToDoge(balance.ConfirmedKoinu),
			"last_refresh", utxoStore.LastRefreshed().Format(time.TimeOnly))
	}
}

func printBanner(log *logging.Logger, cfg *config.Config, address string) {
	networkLabel := "mainnet"
	if cfg.IsTestnet() {
		networkLabel = "TESTNET"
	}

	log.Info("")
	log.Info("=================================================")
	log.Infof("  OpenClaw Doge Wallet (%s)", networkLabel)
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  Address: %s", address)
	log.Infof("  Provider: %s", cfg.ProviderURL())
	log.Infof("  Data dir: %s", config.ExpandPath(cfg.Storage.DataDir))
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
