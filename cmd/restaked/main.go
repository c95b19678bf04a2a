package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"restakechain/config"
	"restakechain/core/events"
	"restakechain/crypto"
	"restakechain/native/bank"
	"restakechain/native/common"
	"restakechain/native/delegation"
	"restakechain/native/guardrail"
	"restakechain/native/registry"
	"restakechain/native/token"
	"restakechain/native/vault"
	"restakechain/native/vaultrouter"
	"restakechain/observability/logging"
	"restakechain/observability/metrics"
	"restakechain/rpc"
	"restakechain/state"
	"restakechain/storage"
)

// eventLogger surfaces every emitted chain event on the structured log so
// operators can tail state changes without an indexer.
type eventLogger struct {
	log *slog.Logger
}

func (l eventLogger) Emit(event events.Event) {
	l.log.Debug("chain event", "type", event.EventType())
}

func main() {
	configPath := flag.String("config", "./restaked.toml", "path to the node configuration file")
	adminAddr := flag.String("admin", "", "bech32 address privileged RPC methods act as")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := logging.Setup("restaked", os.Getenv("RESTAKE_ENV"), cfg.LogDir)

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chaindata"))
	if err != nil {
		log.Error("open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	store := state.NewStore(db)

	var admin [20]byte
	if *adminAddr != "" {
		decoded, err := crypto.DecodeAddress(*adminAddr)
		if err != nil {
			log.Error("decode admin address", "err", err)
			os.Exit(1)
		}
		copy(admin[:], decoded.Bytes())
	}

	pauses := common.NewSwitchboard()
	emitter := metrics.Emitter{Next: eventLogger{log: log}, Metrics: metrics.Restaking()}

	bankLedger := bank.NewLedger(store)
	tokenLedger := token.NewLedger(store)

	registryEngine := registry.NewEngine()
	registryEngine.SetState(store)
	registryEngine.SetEmitter(emitter)
	registryEngine.SetPauses(pauses)

	guardrailEngine := guardrail.NewEngine()
	guardrailEngine.SetState(store)
	guardrailEngine.SetEmitter(emitter)
	guardrailEngine.SetPauses(pauses)

	routerEngine := vaultrouter.NewEngine()
	routerEngine.SetState(store)
	routerEngine.SetRegistry(registryEngine)
	routerEngine.SetGuardrail(guardrailEngine)
	routerEngine.SetLedgers(bankLedger, tokenLedger)
	routerEngine.SetEmitter(emitter)
	routerEngine.SetPauses(pauses)
	routerEngine.SetOwner(admin)

	vaultEngine := vault.NewEngine()
	vaultEngine.SetState(store)
	vaultEngine.SetLedgers(bankLedger, tokenLedger)
	vaultEngine.SetRouter(routerEngine)
	vaultEngine.SetRegistry(registryEngine)
	vaultEngine.SetEmitter(emitter)
	vaultEngine.SetPauses(pauses)
	vaultEngine.SetChainInfo(cfg.ChainNamespace, cfg.ChainID)
	routerEngine.SetVaults(vaultEngine)

	delegationEngine := delegation.NewEngine()
	delegationEngine.SetState(store)
	delegationEngine.SetEmitter(emitter)
	delegationEngine.SetPauses(pauses)
	delegationEngine.SetOwner(admin)

	strategyManager := delegation.NewManager()
	strategyManager.SetState(store)
	strategyManager.SetLedgers(bankLedger, tokenLedger)
	strategyManager.SetDelegation(delegationEngine)
	strategyManager.SetEmitter(emitter)
	strategyManager.SetPauses(pauses)
	delegationEngine.SetManager(strategyManager)

	rpcServer := rpc.NewServer(log, rpc.ServerConfig{
		AuthSecret:   cfg.RPCAuthSecret,
		RateLimit:    cfg.RPCRateLimit,
		RateBurst:    cfg.RPCRateBurst,
		AdminAddress: admin,
	}, vaultEngine, registryEngine, routerEngine, guardrailEngine, pauses)

	mux := http.NewServeMux()
	mux.Handle("/", rpcServer)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("restaked listening", "addr", cfg.ListenAddress, "chain_id", cfg.ChainID)
	if err := server.ListenAndServe(); err != nil {
		log.Error("http server stopped", "err", err)
		os.Exit(1)
	}
}
