// Command exchanged wires the exchange's read/write HTTP surface to a
// concrete CandleSource, risk policy, wallet snapshot store and JWT
// middleware, and serves it until terminated.
//
// Exit codes: 0 success, 2 bad input/config, 3 data gap, 4 strategy
// service unreachable after retries, 5 internal engine fault. This
// process's own startup path returns 0, 2, 3 (the -candles CSV fails
// to load) and 5 (the wallet store cannot be reached, or the server
// stops with an error); it never returns 4. A DataGap within a
// requested range and StrategyUnavailable are per-run errors surfaced
// through the HTTP responses of POST /backtest/orchestrate and
// POST /backtest/run, not this process's exit status.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"virtual-exchange/internal/auth"
	"virtual-exchange/internal/domain"
	"virtual-exchange/internal/httpapi"
	"virtual-exchange/internal/newsfeed"
	"virtual-exchange/internal/riskpolicy"
	"virtual-exchange/internal/runtime"
	"virtual-exchange/internal/walletstore"
)

const (
	exitOK        = 0
	exitBadInput  = 2
	exitDataGap   = 3
	exitStrategy  = 4
	exitEngineErr = 5
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		addr          string
		candlesCSV    string
		defaultSymbol string
		symbolsPath   string
		policyPath    string
		newsPath      string
		redisAddr     string
		walletDSN     string
		feeRate       string
		slippage      string
		engineVersion string
		requireAuth   bool
	)

	flag.StringVar(&addr, "addr", ":8080", "address to listen on")
	flag.StringVar(&candlesCSV, "candles", "", "path to a one-minute OHLCV CSV to seed the in-memory candle source")
	flag.StringVar(&defaultSymbol, "symbol", "", "symbol to assign rows of -candles that carry no symbol column")
	flag.StringVar(&symbolsPath, "symbols", "", "path to a JSON {coin: symbol} mapping (injective); empty uses a built-in default")
	flag.StringVar(&policyPath, "policy", "", "path to a risk policy JSON file; empty uses riskpolicy.DefaultPolicy")
	flag.StringVar(&newsPath, "news", "", "path to a JSON array of news events; empty serves no news")
	flag.StringVar(&redisAddr, "redis-addr", "", "Redis address for the derived-interval candle cache; empty disables caching")
	flag.StringVar(&walletDSN, "wallet-dsn", "", "Postgres DSN for wallet snapshot persistence; empty disables snapshotting")
	flag.StringVar(&feeRate, "fee-rate", "0", "fee rate applied to notional on every fill")
	flag.StringVar(&slippage, "slippage-model", "close", "slippage model label recorded in the reproducibility block")
	flag.StringVar(&engineVersion, "engine-version", "exchanged-dev", "opaque engine_version recorded in every report")
	flag.BoolVar(&requireAuth, "require-auth", false, "gate every route except /health behind JWT bearer auth (reads JWT_SECRET etc. from env)")
	flag.Parse()

	fee, err := decimal.NewFromString(feeRate)
	if err != nil {
		log.Printf("exchanged: invalid -fee-rate %q: %v", feeRate, err)
		return exitBadInput
	}

	symbols, err := loadSymbolTable(symbolsPath)
	if err != nil {
		log.Printf("exchanged: load symbol table: %v", err)
		return exitBadInput
	}

	policy, err := riskpolicy.LoadPolicy(policyPath)
	if err != nil {
		log.Printf("exchanged: load risk policy: %v", err)
		return exitBadInput
	}
	enforcer := riskpolicy.NewEnforcer(policy)

	var source runtime.CandleSource
	if candlesCSV != "" {
		candles, err := runtime.LoadCandlesCSV(candlesCSV, defaultSymbol)
		if err != nil {
			log.Printf("exchanged: load candles: %v", err)
			return exitDataGap
		}
		source = runtime.NewInMemoryCandleSource(candles)
	} else {
		source = runtime.NewInMemoryCandleSource(nil)
	}

	var cache *runtime.Cache
	if redisAddr != "" {
		cache, err = runtime.NewCache(runtime.CacheConfig{RedisURL: redisAddr, TTL: runtime.DefaultCacheConfig().TTL})
		if err != nil {
			log.Printf("exchanged: derived-interval cache disabled, redis unreachable: %v", err)
			cache = nil
		}
	}

	feed := newsfeed.NewFeed()
	if newsPath != "" {
		events, err := loadNewsEvents(newsPath)
		if err != nil {
			log.Printf("exchanged: load news events: %v", err)
			return exitBadInput
		}
		feed.Load(events)
	}

	var store *walletstore.Store
	if walletDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		walletCfg := walletstore.DefaultConfig()
		walletCfg.DSN = walletDSN
		db, err := walletstore.ConnectWithMigrations(ctx, walletCfg)
		if err != nil {
			log.Printf("exchanged: connect wallet store: %v", err)
			return exitEngineErr
		}
		store = walletstore.NewStore(db)
	}

	var jwtManager *auth.JWTManager
	if requireAuth {
		jwtManager, err = auth.NewJWTManagerFromEnv()
		if err != nil {
			log.Printf("exchanged: %v", err)
			return exitBadInput
		}
	}

	deps := httpapi.Deps{
		Source:              source,
		Symbols:             symbols,
		News:                feed,
		Cache:               cache,
		Enforcer:            enforcer,
		Auth:                jwtManager,
		DefaultStartingCash: decimal.NewFromInt(10_000),
		FeeRate:             fee,
		SlippageModel:       slippage,
		EngineVersion:       engineVersion,
	}
	// Assigned only when non-nil: a typed-nil *walletstore.Store stored in
	// the SnapshotStore interface field would make the orchestrator's own
	// `store == nil` check false and panic on the first Save call.
	if store != nil {
		deps.Store = store
	}

	server := httpapi.NewServer(deps)

	log.Printf("exchanged: listening on %s", addr)
	if err := http.ListenAndServe(addr, server); err != nil {
		log.Printf("exchanged: server error: %v", err)
		return exitEngineErr
	}
	return exitOK
}

// loadSymbolTable reads a JSON {coin: symbol} object from path. An empty
// path falls back to a small built-in mapping covering the majors, so
// the process can start without any configuration for local/dev use.
func loadSymbolTable(path string) (*domain.SymbolTable, error) {
	mapping := map[string]string{
		"BTC": "BTCUSDT",
		"ETH": "ETHUSDT",
		"SOL": "SOLUSDT",
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read symbols file %q: %w", path, err)
		}
		mapping = make(map[string]string)
		if err := json.Unmarshal(data, &mapping); err != nil {
			return nil, fmt.Errorf("parse symbols file %q: %w", path, err)
		}
	}
	for coin, symbol := range mapping {
		mapping[coin] = strings.ToUpper(symbol)
	}
	return domain.NewSymbolTable(mapping)
}

// loadNewsEvents reads a JSON array of newsfeed.Event from path.
func loadNewsEvents(path string) ([]newsfeed.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read news file %q: %w", path, err)
	}
	var events []newsfeed.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("parse news file %q: %w", path, err)
	}
	return events, nil
}
