package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"xswap/pkg/notify"
	"xswap/pkg/swap"
	"xswap/pkg/types"
)

var noConfirm bool

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <source-token> to <dest-token>",
	Short: "Perform a cross-chain token swap",
	Long: `Quote, approve if needed, build, sign and submit a cross-chain order, then
follow it until it is filled, expired or cancelled.

IMPORTANT:
  - A private key and RPC URL must be configured for --from-chain
  - Without --yes every signature and transaction is confirmed first

Examples:
  xswap swap 1.5 0xA0b8...eB48 to 0x2791...4174 --from-chain 1 --to-chain 137 --decimals 6

  # Skip all confirmations
  xswap swap 1.5 0xA0b8...eB48 to 0x2791...4174 --from-chain 1 --to-chain 137 --decimals 6 --yes`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)
	addRouteFlags(swapCmd)
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompts")
}

func runSwap(cmd *cobra.Command, args []string) {
	req, err := parseSwapArgs(args)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	a := mustLoadApp(cmd)
	defer a.close()

	w, closeWallet, err := a.wallet(req.SourceChain, noConfirm)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer closeWallet()

	orch, err := swap.New(swap.Config{
		API:          a.api,
		Wallet:       w,
		Orders:       a.orders,
		Notifier:     notify.NewConsole(os.Stdout),
		Logger:       a.logger,
		Debounce:     a.cfg.QuoteDebounce,
		PollInterval: a.cfg.PollInterval,
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer orch.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := driveSwap(ctx, orch, req); err != nil {
		if errors.Is(err, context.Canceled) {
			color.Yellow("\nSwap interrupted. Track the order later with: xswap orders watch\n")
			return
		}
		os.Exit(1)
	}
}

// driveSwap runs one swap to a terminal phase. Failures have already been
// shown to the user by the orchestrator's notifier.
func driveSwap(ctx context.Context, orch *swap.Orchestrator, req *types.SwapRequest) error {
	quotes := make(chan *types.Quote, 1)
	quoteErrs := make(chan error, 1)
	changed := make(chan struct{}, 1)

	unsubscribe := orch.Subscribe(func(ev swap.Event) {
		switch {
		case ev.Kind == swap.EventQuoteUpdated && ev.Quote != nil:
			offer(quotes, ev.Quote)
		case ev.Kind == swap.EventPhaseChanged && ev.Phase == swap.PhaseIdle && ev.Err != nil && !errors.Is(ev.Err, swap.ErrStaleRequest):
			offer(quoteErrs, ev.Err)
		case ev.Kind == swap.EventOrderUpdated && ev.Order != nil:
			fmt.Printf("  %s %s %d%%\n", color.HiBlackString(shortKey(ev.Order.Key())), coloredStatus(ev.Order.Status), ev.Progress)
		}
		if ev.Kind == swap.EventPhaseChanged {
			offer(changed, struct{}{})
		}
	})
	defer unsubscribe()

	orch.SetRoute(swap.Route{
		SrcChain: req.SourceChain,
		DstChain: req.DestChain,
		SrcToken: req.SourceToken,
		DstToken: req.DestToken,
	})
	orch.SetAmount(req.AmountRaw)

	var quote *types.Quote
	select {
	case quote = <-quotes:
	case err := <-quoteErrs:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}

	displayQuote(quote, req)
	if !noConfirm && !confirm("Proceed with swap?") {
		fmt.Println("\nSwap cancelled.")
		return nil
	}

	for {
		outcome, err := orch.Submit(ctx)
		if err != nil {
			return err
		}
		if !outcome.Approved {
			color.Cyan("\nOrder %s submitted. Waiting for it to settle...\n", outcome.Order.OrderHash)
			break
		}
		fmt.Printf("  Approval tx: %s\n", color.CyanString(outcome.ApprovalTx))
		if !noConfirm && !confirm("Submit the order now?") {
			fmt.Println("\nApproval confirmed; order not submitted.")
			return nil
		}
	}

	// Submit returns with the orchestrator polling; wait for it to leave
	for {
		switch orch.Phase() {
		case swap.PhaseSucceeded:
			printSuccess("Swap completed.")
			return nil
		case swap.PhaseFailed:
			return fmt.Errorf("swap failed")
		case swap.PhaseIdle:
			// expired or cancelled, the poller already said which
			return fmt.Errorf("order did not fill")
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func confirm(prompt string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (y/N): ", prompt)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
