package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"xswap/config"
	"xswap/pkg/client"
	"xswap/pkg/logging"
	"xswap/pkg/order"
	"xswap/pkg/wallet"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "xswap",
	Short: "A CLI for cross-chain swaps through an intent-based order relayer",
	Long: `xswap quotes, approves, builds, signs and submits cross-chain limit orders
and tracks them until they are filled, expired or cancelled.

Examples:
  xswap quote 1.5 0xA0b8...eB48 to 0x2791...4174 --from-chain 1 --to-chain 137 --decimals 6
  xswap swap 1.5 0xA0b8...eB48 to 0x2791...4174 --from-chain 1 --to-chain 137 --decimals 6
  xswap status <order-hash> --from-chain 1 --to-chain 137 --watch
  xswap orders list --active`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $HOME/.xswap.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

// app holds what every command needs once configuration is loaded
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	api    *client.FusionPlusClient
	orders *order.Manager
	close  func()
}

func loadApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, err
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	api := client.NewFusionPlusClient(client.Options{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Timeout:   cfg.RequestTimeout,
		RateLimit: cfg.RateLimit,
		Logger:    logger,
	})

	store, closeStore, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		api:    api,
		orders: order.NewManager(store),
		close:  closeStore,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (order.Store, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}

	switch cfg.Store {
	case config.StoreRedis:
		store, err := order.NewRedisStore(ctx, order.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store, err := order.NewFileStore(cfg.StoragePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

// wallet opens the signing wallet for chainID. Unless skipConfirm is set,
// every signature and transaction is confirmed on the terminal first.
func (a *app) wallet(chainID int, skipConfirm bool) (wallet.Wallet, func(), error) {
	network, err := a.cfg.Network(chainID)
	if err != nil {
		return nil, nil, err
	}

	w, err := wallet.NewEVMWallet(chainID, network, a.logger)
	if err != nil {
		return nil, nil, err
	}
	if skipConfirm {
		return w, w.Close, nil
	}
	return wallet.NewConfirmingWallet(w, os.Stdin, os.Stdout), w.Close, nil
}

func mustLoadApp(cmd *cobra.Command) *app {
	a, err := loadApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return a
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	color.Green("\n%s\n", message)
}

func rule(width int) string {
	return strings.Repeat("=", width)
}
