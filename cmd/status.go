package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"xswap/pkg/notify"
	"xswap/pkg/swap"
	"xswap/pkg/types"
)

var (
	watchStatus   bool
	watchInterval time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status <order-hash>",
	Short: "Check the status of an order",
	Long: `Check the status of a cross-chain order by its hash.

Examples:
  xswap status 0x1234...abcd --from-chain 1 --to-chain 137
  xswap status 0x1234...abcd --from-chain 1 --to-chain 137 --watch
  xswap status 0x1234...abcd --from-chain 1 --to-chain 137 --watch --interval 10s`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().IntVar(&fromChain, "from-chain", 0, "Source chain id")
	statusCmd.Flags().IntVar(&toChain, "to-chain", 0, "Destination chain id")
	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates until the order settles")
	statusCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Polling interval when watching (defaults to poll_interval)")
}

func runStatus(cmd *cobra.Command, args []string) {
	orderHash := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if !swap.ValidOrderHash(orderHash) {
		printError(swap.ErrInvalidOrderHash)
		os.Exit(1)
	}

	a := mustLoadApp(cmd)
	defer a.close()

	// fall back to the chains of a tracked record
	if fromChain == 0 || toChain == 0 {
		if rec, err := a.orders.Get(orderHash); err == nil {
			fromChain, toChain = rec.SrcChain, rec.DstChain
		}
	}

	if watchStatus {
		if jsonOutput {
			fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
			os.Exit(1)
		}
		watchOrderStatus(a, orderHash)
		return
	}
	checkOrderStatus(cmd.Context(), a, orderHash, jsonOutput)
}

func checkOrderStatus(ctx context.Context, a *app, orderHash string, jsonOutput bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking order status..."
		s.Start()
	}

	resp, err := a.api.GetOrderStatus(ctx, orderHash, fromChain, toChain)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	status, err := types.ParseOrderStatus(resp.Status)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	report := types.StatusReport{
		OrderHash: orderHash,
		Status:    status,
		Fills:     resp.Fills,
		SrcTxHash: resp.SrcTxHash,
		DstTxHash: resp.DstTxHash,
	}

	if jsonOutput {
		output, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(output))
		return
	}
	displayStatus(report, swap.Progress(status, 0))
}

func watchOrderStatus(a *app, orderHash string) {
	interval := watchInterval
	if interval <= 0 {
		interval = a.cfg.PollInterval
	}

	fmt.Printf("\nWatching order %s\n", color.CyanString(orderHash))
	fmt.Printf("Checking every %s. Press Ctrl+C to stop.\n\n", interval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poller := swap.NewPoller(a.api, interval, notify.NewConsole(os.Stdout), a.logger)
	handle, err := poller.Start(ctx, swap.PollTarget{
		OrderHash: orderHash,
		SrcChain:  fromChain,
		DstChain:  toChain,
	}, func(u swap.PollUpdate) {
		displayStatus(u.Report, u.Progress)
		// keep a tracked record in step
		if _, _, err := a.orders.ApplyReport(orderHash, u.Report, u.Progress); err != nil {
			a.logger.Debug("order not tracked locally", "order_hash", orderHash, "error", err)
		}
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	select {
	case <-handle.Done():
	case <-ctx.Done():
		handle.Stop()
		<-handle.Done()
		color.Yellow("\nStopped watching.\n")
	}
}

func displayStatus(report types.StatusReport, progress int) {
	fmt.Println("\n" + rule(70))
	color.Green("                        ORDER STATUS")
	fmt.Println(rule(70))

	fmt.Printf("\n  Order Hash:   %s\n", color.CyanString(report.OrderHash))
	fmt.Printf("  Status:       %s\n", coloredStatus(report.Status))
	fmt.Printf("  Progress:     %d%%\n", progress)

	if report.SrcTxHash != "" {
		fmt.Printf("  Source Tx:    %s\n", color.HiBlackString(report.SrcTxHash))
	}
	if report.DstTxHash != "" {
		fmt.Printf("  Dest Tx:      %s\n", color.HiBlackString(report.DstTxHash))
	}
	for _, fill := range report.Fills {
		fmt.Printf("  Fill:         %s (%s -> %s)\n", color.HiBlackString(fill.TxHash), fill.FilledMakingAmount, fill.FilledTakingAmount)
	}

	fmt.Println("\n" + rule(70) + "\n")
}

func coloredStatus(status types.OrderStatus) string {
	s := strings.ToUpper(string(status))

	switch status {
	case types.OrderFilled:
		return color.GreenString(s)
	case types.OrderCreated, types.OrderPending, types.OrderSrcDeployed, types.OrderDstDeployed, types.OrderPartiallyFilled:
		return color.YellowString(s)
	case types.OrderExpired, types.OrderCancelled:
		return color.RedString(s)
	default:
		return s
	}
}

func shortKey(key string) string {
	if len(key) <= 14 {
		return key
	}
	return key[:8] + "..." + key[len(key)-4:]
}
