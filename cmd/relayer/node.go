package relayer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/OmegaNetwork-source/omega-bridge/pkg/common"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/db"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/executor"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/node"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/processor"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/readiness"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/supervisor"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/version"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/watchers/evm"
	"github.com/OmegaNetwork-source/omega-bridge/pkg/watchers/evm/connectors"
	solwatch "github.com/OmegaNetwork-source/omega-bridge/pkg/watchers/solana"

	ethCommon "github.com/ethereum/go-ethereum/common"
	ethCrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gorilla/mux"
	ipfslog "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "omega-bridge-relayer"

var (
	configFilePath *string

	statusAddr *string
	dataDir    *string
	logLevel   *string

	dedupBackend   *string
	unknownOutcome *string

	solanaRPC         *string
	solanaNFTRPC      *string
	solanaMetadataRPC *string
	solanaNetwork     *string
	solanaCommitment  *string
	solanaEncoding    *string
	solanaRPS         *float64
	solanaBurst       *int
	solanaKeypair     *string

	tokenMint        *string
	relayerWallet    *string
	pollInterval     *time.Duration
	nftPageSize      *int
	burnPageSize     *int
	metadataCacheLen *int

	omegaRPC          *string
	omegaPoll         *time.Duration
	omegaBridge       *string
	omegaKey          *string
	defaultCollection *string
	nftCollections    *string
	existenceWindow   *int64

	disableReverse *bool
	sweepInterval  *time.Duration
	sweepDepth     *uint64

	maxAttempts    *int
	callTimeout    *time.Duration
	confirmTimeout *time.Duration
	heartbeat      *time.Duration
	compactEvery   *time.Duration
)

func init() {
	configFilePath = NodeCmd.Flags().String("configFile", "", "Path to a relayer config file (yaml, json or toml)")

	statusAddr = NodeCmd.Flags().String("statusAddr", "[::]:6060", "Listen address for status server, or sd:<addr> for a systemd socket (disabled if blank)")
	dataDir = NodeCmd.Flags().String("dataDir", "", "Data directory holding the dedup stores (required)")
	logLevel = NodeCmd.Flags().String("logLevel", "info", "Logging level (debug, info, warn, error, dpanic, panic, fatal)")

	dedupBackend = NodeCmd.Flags().String("dedupBackend", string(db.BackendFile), "Dedup store backend (file or badger)")
	unknownOutcome = NodeCmd.Flags().String("unknownOutcome", string(common.UnknownOutcomeSkip),
		"What to do with intents whose transaction was submitted but never confirmed (skip or record)")

	solanaRPC = NodeCmd.Flags().String("solanaRPC", "", "Solana RPC URL for token burns and mints (required)")
	solanaNFTRPC = NodeCmd.Flags().String("solanaNFTRPC", "", "Solana RPC URL for NFT deposits and returns (defaults to --solanaRPC)")
	solanaMetadataRPC = NodeCmd.Flags().String("solanaMetadataRPC", "", "Solana RPC URL for NFT metadata lookups (defaults to --solanaNFTRPC)")
	solanaNetwork = NodeCmd.Flags().String("solanaNetwork", "solana", "Solana network name used in metrics")
	solanaCommitment = NodeCmd.Flags().String("solanaCommitment", string(rpc.CommitmentConfirmed), "Commitment of Solana reads")
	solanaEncoding = NodeCmd.Flags().String("solanaEncoding", string(solana.EncodingJSON), "Transaction encoding (json or jsonParsed)")
	solanaRPS = NodeCmd.Flags().Float64("solanaRPS", 10, "Maximum Solana RPC requests per second (0 disables the limit)")
	solanaBurst = NodeCmd.Flags().Int("solanaBurst", 5, "Solana RPC request burst")
	solanaKeypair = NodeCmd.Flags().String("solanaKeypair", "", "Path to the relayer solana-keygen file (or set SOLANA_RELAYER_KEYPAIR_JSON)")

	tokenMint = NodeCmd.Flags().String("tokenMint", "", "Mint of the bridged SPL token (required)")
	relayerWallet = NodeCmd.Flags().String("relayerWallet", "", "Wallet receiving NFT deposits (defaults to the relayer keypair)")
	pollInterval = NodeCmd.Flags().Duration("pollInterval", solwatch.DefaultPollInterval, "Solana polling interval")
	nftPageSize = NodeCmd.Flags().Int("nftPageSize", solwatch.DefaultNFTPageSize, "Signatures listed per NFT deposit poll")
	burnPageSize = NodeCmd.Flags().Int("burnPageSize", solwatch.DefaultBurnPageSize, "Signatures listed per token burn poll")
	metadataCacheLen = NodeCmd.Flags().Int("metadataCacheSize", 1024, "Number of NFT metadata accounts kept in memory")

	omegaRPC = NodeCmd.Flags().String("omegaRPC", "", "Omega RPC URL; ws(s) subscribes to events, http(s) polls for them (required)")
	omegaPoll = NodeCmd.Flags().Duration("omegaPollInterval", connectors.DefaultLogPollInterval, "Omega event polling interval for http(s) RPC URLs")
	omegaBridge = NodeCmd.Flags().String("omegaBridge", "", "Omega bridge contract address (required)")
	omegaKey = NodeCmd.Flags().String("omegaKey", "", "Hex private key of the Omega relayer account (required)")
	defaultCollection = NodeCmd.Flags().String("defaultCollection", "", "Wrapped NFT contract for unrecognized collections (required)")
	nftCollections = NodeCmd.Flags().String("nftCollections", "",
		"Wrapped NFT contracts by collection, as SYMBOL:Name:address, comma separated")
	existenceWindow = NodeCmd.Flags().Int64("existenceWindow", executor.DefaultExistenceWindow,
		"Number of most recent wrapped tokens searched for an existing wrap before minting")

	disableReverse = NodeCmd.Flags().Bool("disableReverse", false, "Do not relay Omega events back to Solana")
	sweepInterval = NodeCmd.Flags().Duration("sweepInterval", evm.DefaultSweepInterval, "Interval of the Omega reconciliation sweep")
	sweepDepth = NodeCmd.Flags().Uint64("sweepDepth", evm.DefaultSweepDepth, "Number of trailing Omega blocks covered by each sweep")

	maxAttempts = NodeCmd.Flags().Int("maxAttempts", 5, "Attempts per write before giving up")
	callTimeout = NodeCmd.Flags().Duration("callTimeout", 15*time.Second, "Timeout of a single RPC call by the executor")
	confirmTimeout = NodeCmd.Flags().Duration("confirmTimeout", 2*time.Minute, "How long to wait for a submitted transaction")
	heartbeat = NodeCmd.Flags().Duration("heartbeat", time.Minute, "Heartbeat log interval")
	compactEvery = NodeCmd.Flags().Duration("compactInterval", 10*time.Minute, "Badger value log GC interval")
}

var NodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run the bridge relayer",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return node.InitFileConfig(cmd, node.ConfigOptions{
			FilePath:  *configFilePath,
			EnvPrefix: "RELAYER",
		})
	},
	Run: runNode,
}

func mustPublicKey(logger *zap.Logger, flag, value string) solana.PublicKey {
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		logger.Fatal("invalid public key", zap.String("flag", flag), zap.Error(err))
	}
	return key
}

func mustAddress(logger *zap.Logger, flag, value string) ethCommon.Address {
	if !ethCommon.IsHexAddress(value) {
		logger.Fatal("invalid address", zap.String("flag", flag), zap.String("value", value))
	}
	return ethCommon.HexToAddress(value)
}

func loadOmegaKey(hexKey string) (*ecdsa.PrivateKey, error) {
	return ethCrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
}

func runNode(cmd *cobra.Command, args []string) {
	lvl, err := ipfslog.LevelFromString(*logLevel)
	if err != nil {
		fmt.Println("Invalid log level")
		os.Exit(1)
	}

	logger := ipfslog.Logger("relayer").Desugar().WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return sanitizingCore{c}
	}))
	ipfslog.SetAllLoggers(lvl)

	logger.Info("starting relayer", zap.String("version", version.Version()))

	// Verify flags

	if *dataDir == "" {
		logger.Fatal("Please specify --dataDir")
	}
	if *solanaRPC == "" {
		logger.Fatal("Please specify --solanaRPC")
	}
	if *tokenMint == "" {
		logger.Fatal("Please specify --tokenMint")
	}
	if *omegaRPC == "" {
		logger.Fatal("Please specify --omegaRPC")
	}
	if *omegaBridge == "" {
		logger.Fatal("Please specify --omegaBridge")
	}
	if *omegaKey == "" {
		logger.Fatal("Please specify --omegaKey")
	}
	if *defaultCollection == "" {
		logger.Fatal("Please specify --defaultCollection")
	}

	policy, err := common.ParseUnknownOutcomePolicy(*unknownOutcome)
	if err != nil {
		logger.Fatal("invalid --unknownOutcome", zap.Error(err))
	}
	mint := mustPublicKey(logger, "tokenMint", *tokenMint)
	bridgeAddr := mustAddress(logger, "omegaBridge", *omegaBridge)
	collections, err := executor.ParseCollections(*nftCollections)
	if err != nil {
		logger.Fatal("invalid --nftCollections", zap.Error(err))
	}
	collectionRouter := &executor.CollectionRouter{
		Collections: collections,
		Default:     mustAddress(logger, "defaultCollection", *defaultCollection),
	}

	ethKey, err := loadOmegaKey(*omegaKey)
	if err != nil {
		logger.Fatal("failed to load omega key", zap.Error(err))
	}
	logger.Info("loaded omega key", zap.Stringer("address", ethCrypto.PubkeyToAddress(ethKey.PublicKey)))

	solKey, err := executor.LoadSolanaKeypair(*solanaKeypair)
	if err != nil {
		logger.Fatal("failed to load solana keypair", zap.Error(err))
	}
	wallet := solKey.PublicKey()
	if *relayerWallet != "" {
		wallet = mustPublicKey(logger, "relayerWallet", *relayerWallet)
	}
	logger.Info("loaded solana keypair", zap.Stringer("pubkey", solKey.PublicKey()), zap.Stringer("wallet", wallet))

	// Register components for readiness checks.
	readiness.RegisterComponent(common.ReadinessSolanaPolling)
	readiness.RegisterComponent(common.ReadinessProcessor)
	if !*disableReverse {
		readiness.RegisterComponent(common.ReadinessOmegaSyncing)
	}

	if *statusAddr != "" {
		// Use a custom router instead of http.DefaultServeMux to avoid exposing handlers that packages register there
		// by default (like pprof).
		router := mux.NewRouter()
		router.HandleFunc("/readyz", readiness.Handler)
		router.HandleFunc("/healthz", readiness.LivenessHandler(serviceName))
		router.Handle("/metrics", promhttp.Handler())

		listener, err := statusListener(*statusAddr)
		if err != nil {
			logger.Fatal("failed to bind status server", zap.String("addr", *statusAddr), zap.Error(err))
		}
		go func() {
			logger.Info("status server listening", zap.Stringer("addr", listener.Addr()))
			logger.Error("status server crashed", zap.Error(http.Serve(listener, router)))
		}()
	}

	// Dedup stores
	stores, err := db.OpenStores(logger, db.Backend(*dedupBackend), *dataDir)
	if err != nil {
		logger.Fatal("failed to open dedup stores", zap.Error(err))
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Error("failed to close dedup stores", zap.Error(err))
		}
	}()

	// Solana reads
	endpoints := resolveSolanaEndpoints(*solanaRPC, *solanaNFTRPC, *solanaMetadataRPC)
	clients := newClientPool(func(url, name string) (*solwatch.Client, error) {
		return solwatch.NewClient(url, name, rpc.CommitmentType(*solanaCommitment),
			solana.EncodingType(*solanaEncoding), *solanaRPS, *solanaBurst)
	})
	defer clients.Each(func(url string, c *solwatch.Client) {
		_ = c.Close()
	})

	sources := []*common.WatchedSource{
		solwatch.NFTDepositSource(wallet, *nftPageSize, *pollInterval),
		solwatch.TokenBurnSource(mint, *burnPageSize, *pollInterval),
	}
	sourceClients := make(map[common.AssetKind]*solwatch.Client, len(sources))
	for _, source := range sources {
		url, err := endpoints.ForKind(source.Kind)
		if err != nil {
			logger.Fatal("invalid watched source", zap.Error(err))
		}
		c, err := clients.Get(url, *solanaNetwork+"-"+source.Kind.String())
		if err != nil {
			logger.Fatal("failed to create solana client", zap.Stringer("kind", source.Kind), zap.Error(err))
		}
		sourceClients[source.Kind] = c
	}
	metadataClient, err := clients.Get(endpoints.Metadata, *solanaNetwork+"-metadata")
	if err != nil {
		logger.Fatal("failed to create solana metadata client", zap.Error(err))
	}
	metadata, err := solwatch.NewMetadataFetcher(metadataClient, *metadataCacheLen)
	if err != nil {
		logger.Fatal("failed to create metadata fetcher", zap.Error(err))
	}

	// Writes
	execCfg := executor.DefaultConfig()
	execCfg.MaxAttempts = *maxAttempts
	execCfg.CallTimeout = *callTimeout
	execCfg.ConfirmTimeout = *confirmTimeout

	execLogger := logger.Named("executor")
	omegaDialer := connectors.NewEthereumDialer(*omegaRPC, bridgeAddr)
	actions := executor.Router{
		common.AssetKindFungibleBurn: executor.NewEVMRelease(execLogger, omegaDialer, ethKey, execCfg),
		common.AssetKindNFTDeposit: executor.NewEVMWrappedMint(execLogger, omegaDialer, ethKey, metadata,
			collectionRouter, *existenceWindow, execCfg),
		common.AssetKindTargetLock: executor.NewSolanaMint(execLogger,
			executor.NewSolanaDialer(endpoints.Token), solKey, mint, execCfg),
		common.AssetKindTargetNFTBurn: executor.NewSolanaNFTReturn(execLogger,
			executor.NewSolanaDialer(endpoints.NFT), solKey, execCfg),
	}

	p := processor.New(logger.Named("processor"), stores, actions, policy)
	handle := func(ctx context.Context, intent *common.TransferIntent) {
		p.Handle(ctx, intent)
	}

	intentC := make(chan *common.TransferIntent, 64)
	omegaConnect := func(ctx context.Context) (connectors.Connector, error) {
		return connectors.NewOmegaConnector(ctx, "omega", *omegaRPC, bridgeAddr, collectionRouter.Addresses(), *omegaPoll, logger)
	}
	omegaWatcher := evm.NewWatcher(omegaConnect, intentC, *sweepInterval, *sweepDepth)

	// Node's main lifecycle context.
	rootCtx, rootCtxCancel := context.WithCancel(context.Background())
	defer rootCtxCancel()

	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigterm
		logger.Info("received shutdown signal")
		rootCtxCancel()
	}()

	// Run supervisor.
	supervisor.New(rootCtx, logger, func(ctx context.Context) error {
		for _, source := range sources {
			processed, ok := stores.Get(source.Kind.Domain())
			if !ok {
				return fmt.Errorf("no dedup store for %s", source)
			}
			poller, err := solwatch.NewPoller(source, sourceClients[source.Kind], processed, handle)
			if err != nil {
				return err
			}
			if err := supervisor.Run(ctx, "solwatch-"+source.Kind.String(), poller.Run); err != nil {
				return err
			}
		}

		if err := supervisor.Run(ctx, "processor", p.Run(intentC)); err != nil {
			return err
		}

		if !*disableReverse {
			if err := supervisor.Run(ctx, "omegawatch", omegaWatcher.Run); err != nil {
				return err
			}
			if err := supervisor.Run(ctx, "omegasweep", omegaWatcher.RunSweep); err != nil {
				return err
			}
		}

		if err := supervisor.Run(ctx, "heartbeat", heartbeatRunnable(*heartbeat)); err != nil {
			return err
		}

		if database := stores.Database(); database != nil {
			if err := supervisor.Run(ctx, "compaction", compactionRunnable(database, *compactEvery)); err != nil {
				return err
			}
		}

		logger.Info("Started internal services")
		supervisor.Signal(ctx, supervisor.SignalHealthy)

		<-ctx.Done()
		return nil
	},
		// It's safer to crash and restart the process in case we encounter a panic,
		// rather than attempting to reschedule the runnable.
		supervisor.WithPropagatePanic)

	<-rootCtx.Done()
	logger.Info("root context cancelled, waiting for in-flight executions...")
	p.Shutdown()
	logger.Info("exiting")
}
