package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tokenledger/config"
	"tokenledger/core"
	"tokenledger/core/types"
	"tokenledger/native/fees"
	"tokenledger/native/token"
	"tokenledger/native/transfer"
	"tokenledger/observability/logging"
	"tokenledger/storage"
)

func main() {
	configFile := flag.String("config", "./ledger.toml", "Path to the configuration file")
	metricsAddr := flag.String("metrics", ":9464", "Listen address for the metrics endpoint")
	memFlag := flag.Bool("mem", false, "DEV ONLY: run against an in-memory database")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LEDGER_ENV"))
	logger := logging.Setup("ledgerd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	var db storage.Database
	if *memFlag {
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			logger.Error("Failed to open database", slog.Any("error", err))
			os.Exit(1)
		}
		db = ldb
	}

	engine, err := core.NewEngine(db, engineConfig(cfg), logger)
	if err != nil {
		logger.Error("Failed to open ledger", slog.Any("error", err))
		db.Close()
		os.Exit(1)
	}
	defer engine.Close()

	if err := bootstrap(engine, cfg, logger); err != nil {
		logger.Error("Bootstrap failed", slog.Any("error", err))
		os.Exit(1)
	}

	if args := flag.Args(); len(args) > 0 {
		if err := runCommand(engine, cfg, args); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	server := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Metrics endpoint listening", "addr", *metricsAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics endpoint failed", slog.Any("error", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Metrics endpoint shutdown", slog.Any("error", err))
	}
	logger.Info("Shutdown complete")
}

// runCommand executes one admin operation against the store and exits.
// Privileged commands act as the configured genesis authority.
func runCommand(engine *core.Engine, cfg *config.Config, args []string) error {
	authority := common.HexToAddress(cfg.Genesis.Authority)
	firm := cfg.Genesis.Firm

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "deposit", "withdraw":
		if len(rest) != 3 {
			return fmt.Errorf("usage: ledgerd %s <asset> <account> <amount>", cmd)
		}
		account, err := parseAddress(rest[1])
		if err != nil {
			return err
		}
		amount, err := parseAmount(rest[2])
		if err != nil {
			return err
		}
		var receipt *types.Receipt
		if cmd == "deposit" {
			receipt, err = wrap(engine.Deposit(authority, rest[0], account, amount, firm))
		} else {
			receipt, err = wrap(engine.Withdraw(authority, rest[0], account, amount, firm))
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s committed ref=%s\n", cmd, receipt.Ref)
	case "approve-kyc":
		if len(rest) != 2 {
			return fmt.Errorf("usage: ledgerd approve-kyc <account> <limit>")
		}
		account, err := parseAddress(rest[0])
		if err != nil {
			return err
		}
		limit, err := parseAmount(rest[1])
		if err != nil {
			return err
		}
		receipt, err := wrap(engine.ApproveKYC(authority, account, true, limit, firm))
		if err != nil {
			return err
		}
		fmt.Printf("approve-kyc committed ref=%s\n", receipt.Ref)
	case "transfer":
		if len(rest) != 4 {
			return fmt.Errorf("usage: ledgerd transfer <asset> <from> <to> <amount>")
		}
		from, err := parseAddress(rest[1])
		if err != nil {
			return err
		}
		to, err := parseAddress(rest[2])
		if err != nil {
			return err
		}
		amount, err := parseAmount(rest[3])
		if err != nil {
			return err
		}
		receipt, err := wrap(engine.Transfer(from, to, rest[0], amount))
		if err != nil {
			return err
		}
		fmt.Printf("transfer committed ref=%s\n", receipt.Ref)
	case "balance":
		if len(rest) != 2 {
			return fmt.Errorf("usage: ledgerd balance <asset> <account>")
		}
		account, err := parseAddress(rest[1])
		if err != nil {
			return err
		}
		bal, err := engine.BalanceOf(rest[0], account)
		if err != nil {
			return err
		}
		frozen, err := engine.FrozenOf(rest[0], account)
		if err != nil {
			return err
		}
		fmt.Printf("balance=%s frozen=%s\n", bal, frozen)
	case "supply":
		if len(rest) != 1 {
			return fmt.Errorf("usage: ledgerd supply <asset>")
		}
		info, err := engine.Asset(rest[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s, %s, %d decimals) supply=%s\n",
			info.Symbol, info.Name, info.TLA, info.Decimals, info.Supply)
	default:
		return fmt.Errorf("unknown command %q (deposit, withdraw, approve-kyc, transfer, balance, supply)", cmd)
	}
	return nil
}

func wrap(receipt *types.Receipt, err error) (*types.Receipt, error) {
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return amount, nil
}

func engineConfig(cfg *config.Config) core.Config {
	return core.Config{
		Transfer: transfer.Config{
			AllowanceCoversFees: cfg.AllowanceCoversFees,
			UnlimitedApprove:    cfg.UnlimitedApprove,
		},
		PayerPaysFees: cfg.PayerPaysFees,
	}
}

// bootstrap seeds the genesis firm, fee schedule, and configured currencies
// on first start. Re-runs are no-ops for anything already installed.
func bootstrap(engine *core.Engine, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Genesis.Firm == "" {
		return nil
	}
	authority := common.HexToAddress(cfg.Genesis.Authority)

	registered, err := engine.IsAuthority(authority)
	if err != nil {
		return err
	}
	if !registered {
		if _, err := engine.Bootstrap(cfg.Genesis.Firm, authority); err != nil {
			return err
		}
		logger.Info("Genesis authority seeded", "firm", cfg.Genesis.Firm,
			logging.MaskField("authority", authority.Hex()))
	}

	if cfg.Fees != (config.FeeConfig{}) {
		params := fees.Params{
			Bps:  big.NewInt(cfg.Fees.Bps),
			Min:  big.NewInt(cfg.Fees.Min),
			Max:  big.NewInt(cfg.Fees.Max),
			Flat: big.NewInt(cfg.Fees.Flat),
		}
		if cfg.Fees.Account != "" {
			params.Account = common.HexToAddress(cfg.Fees.Account)
		}
		if _, err := engine.SetFeeParams(authority, cfg.Genesis.Firm, params); err != nil {
			return err
		}
	}

	for _, cur := range cfg.Currencies {
		exists, err := engine.HasAsset(cur.Symbol)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		params := token.Params{
			Name:     cur.Name,
			Symbol:   cur.Symbol,
			TLA:      cur.TLA,
			Version:  cur.Version,
			Decimals: uint8(cur.Decimals),
		}
		if cur.FeeAccount != "" {
			params.FeeAccount = common.HexToAddress(cur.FeeAccount)
		}
		if _, err := engine.RegisterAsset(authority, cfg.Genesis.Firm, params); err != nil {
			return err
		}
		logger.Info("Currency registered", "asset", cur.Symbol)
	}
	return nil
}
