package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"xswap/pkg/notify"
	"xswap/pkg/order"
	"xswap/pkg/swap"
	"xswap/pkg/types"
)

var (
	// List filters
	ordersMaker      string
	ordersChain      int
	ordersActiveOnly bool
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Manage locally tracked orders",
	Long: `Every submitted order is recorded locally (file or redis store) together with
its last known status, fills and transaction hashes.`,
}

var ordersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked orders, newest first",
	Args:  cobra.NoArgs,
	Run:   runOrdersList,
}

var ordersViewCmd = &cobra.Command{
	Use:   "view <order-hash>",
	Short: "Show one tracked order",
	Args:  cobra.ExactArgs(1),
	Run:   runOrdersView,
}

var ordersDismissCmd = &cobra.Command{
	Use:     "dismiss <order-hash>",
	Aliases: []string{"delete", "rm"},
	Short:   "Stop tracking an order",
	Args:    cobra.ExactArgs(1),
	Run:     runOrdersDismiss,
}

var ordersWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll every active order until it settles",
	Long: `Poll the status of every tracked order that has not reached a terminal
status and store each change. Press Ctrl+C to stop; progress is kept.`,
	Args: cobra.NoArgs,
	Run:  runOrdersWatch,
}

func init() {
	rootCmd.AddCommand(ordersCmd)

	ordersCmd.AddCommand(ordersListCmd)
	ordersCmd.AddCommand(ordersViewCmd)
	ordersCmd.AddCommand(ordersDismissCmd)
	ordersCmd.AddCommand(ordersWatchCmd)

	ordersListCmd.Flags().StringVar(&ordersMaker, "maker", "", "Only orders from this maker address")
	ordersListCmd.Flags().IntVar(&ordersChain, "chain", 0, "Only orders touching this chain id")
	ordersListCmd.Flags().BoolVar(&ordersActiveOnly, "active", false, "Only orders that have not settled")
}

func runOrdersList(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a := mustLoadApp(cmd)
	defer a.close()

	records, err := a.orders.List(order.Filter{
		Maker:      ordersMaker,
		ChainID:    ordersChain,
		ActiveOnly: ordersActiveOnly,
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		output, _ := json.MarshalIndent(records, "", "  ")
		fmt.Println(string(output))
		return
	}

	if len(records) == 0 {
		color.Yellow("No tracked orders found.\n")
		fmt.Println("\nPlace an order with:")
		color.Cyan("  xswap swap <amount> <token> to <token> --from-chain <id> --to-chain <id>\n")
		return
	}

	fmt.Println("\n" + rule(110))
	color.Green("                                              TRACKED ORDERS")
	fmt.Println(rule(110))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nORDER\tROUTE\tAMOUNT\tSTATUS\tPROGRESS\tUPDATED")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for _, rec := range records {
		route := fmt.Sprintf("%d -> %d", rec.SrcChain, rec.DstChain)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d%%\t%s\n",
			shortKey(rec.Key()), route, truncateString(rec.SrcAmount, 24), coloredStatus(rec.Status),
			rec.Progress, rec.UpdatedAt.Format("2006-01-02 15:04:05"))
	}

	w.Flush()
	fmt.Println("\n" + rule(110))

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		fmt.Printf("Store: %s\n", storeLocation(a.orders.Store()))
	}
	fmt.Println()
}

// storeLocation describes where records live
func storeLocation(store order.Store) string {
	switch s := store.(type) {
	case *order.FileStore:
		return s.GetFilePath()
	case *order.RedisStore:
		return "redis://" + s.Addr()
	default:
		return fmt.Sprintf("%T", store)
	}
}

func runOrdersView(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a := mustLoadApp(cmd)
	defer a.close()

	rec, err := a.orders.Get(args[0])
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		output, _ := json.MarshalIndent(rec, "", "  ")
		fmt.Println(string(output))
		return
	}

	fmt.Println("\n" + rule(70))
	color.Green("                         ORDER DETAILS")
	fmt.Println(rule(70))

	fmt.Printf("\n  Order Hash:   %s\n", color.CyanString(rec.OrderHash))
	fmt.Printf("  Record ID:    %s\n", rec.ID)
	fmt.Printf("  Quote ID:     %s\n", rec.QuoteID)
	fmt.Printf("  Maker:        %s\n", rec.Maker)
	fmt.Printf("  Route:        chain %d -> chain %d\n", rec.SrcChain, rec.DstChain)
	fmt.Printf("  Sell:         %s %s\n", rec.SrcAmount, color.YellowString(rec.SrcToken))
	fmt.Printf("  Buy:          ~%s %s\n", rec.DstAmount, color.YellowString(rec.DstToken))
	fmt.Printf("  Status:       %s (%d%%)\n", coloredStatus(rec.Status), rec.Progress)
	fmt.Printf("  Created:      %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Updated:      %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))

	if rec.SrcTxHash != "" {
		fmt.Printf("  Source Tx:    %s\n", color.HiBlackString(rec.SrcTxHash))
	}
	if rec.DstTxHash != "" {
		fmt.Printf("  Dest Tx:      %s\n", color.HiBlackString(rec.DstTxHash))
	}
	if len(rec.Fills) > 0 {
		fmt.Println("\n  Fills:")
		for _, fill := range rec.Fills {
			fmt.Printf("    %s  %s -> %s\n", color.HiBlackString(fill.TxHash), fill.FilledMakingAmount, fill.FilledTakingAmount)
		}
	}

	fmt.Println("\n" + rule(70) + "\n")
}

func runOrdersDismiss(cmd *cobra.Command, args []string) {
	a := mustLoadApp(cmd)
	defer a.close()

	if err := a.orders.Dismiss(args[0]); err != nil {
		printError(err)
		os.Exit(1)
	}
	printSuccess(fmt.Sprintf("✓ Order %s dismissed.", shortKey(args[0])))
}

func runOrdersWatch(cmd *cobra.Command, args []string) {
	a := mustLoadApp(cmd)
	defer a.close()

	active, err := a.orders.Active(order.Filter{})
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if len(active) == 0 {
		color.Yellow("\nNo active orders found.\n")
		return
	}

	fmt.Println("\n" + rule(70))
	color.Green("                     XSWAP ORDER WATCHER")
	fmt.Println(rule(70))
	fmt.Printf("\nWatching %d active order(s) every %s.\n", len(active), a.cfg.PollInterval)
	color.Yellow("Press Ctrl+C to stop gracefully\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := watchOrders(ctx, a.orders, swap.NewPoller(a.api, a.cfg.PollInterval, notify.NewConsole(os.Stdout), a.logger), active); err != nil {
		printError(err)
		os.Exit(1)
	}

	if ctx.Err() != nil {
		color.Yellow("\nStopped. Order states have been saved.\n")
		return
	}
	printSuccess("✓ All watched orders have settled.")
}

// watchOrders runs one polling session per record and returns once every
// session has ended, either settled or cancelled through ctx
func watchOrders(ctx context.Context, orders *order.Manager, poller *swap.Poller, records []*types.OrderRecord) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, rec := range records {
		if !swap.ValidOrderHash(rec.OrderHash) {
			continue
		}
		key := rec.Key()

		handle, err := poller.Start(ctx, swap.PollTarget{
			OrderHash: rec.OrderHash,
			SrcChain:  rec.SrcChain,
			DstChain:  rec.DstChain,
			Status:    rec.Status,
			Progress:  rec.Progress,
		}, func(u swap.PollUpdate) {
			updated, changed, err := orders.ApplyReport(key, u.Report, u.Progress)
			if err != nil {
				color.Red("  %s: %v", shortKey(key), err)
				return
			}
			if !changed {
				return
			}
			fmt.Printf("  %s %s %d%%\n", color.HiBlackString(shortKey(key)), coloredStatus(updated.Status), updated.Progress)
		})
		if err != nil {
			return err
		}

		g.Go(func() error {
			<-handle.Done()
			return nil
		})
	}

	return g.Wait()
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
