package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"xswap/pkg/notify"
	"xswap/pkg/parser"
	"xswap/pkg/swap"
	"xswap/pkg/types"
)

var (
	fromChain   int
	toChain     int
	decimals    int32
	dstDecimals int32
	walletAddr  string
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <source-token> to <dest-token>",
	Short: "Get a price for a cross-chain swap",
	Long: `Request a quote without placing an order.

Examples:
  xswap quote 1.5 0xA0b8...eB48 to 0x2791...4174 --from-chain 1 --to-chain 137 --decimals 6
  xswap quote 0.25 0xC02a...6Cc2 to 0x7ceB...f619 --from-chain 1 --to-chain 137 --wallet 0xf39F...2266`,
	Args: cobra.MinimumNArgs(1),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	addRouteFlags(quoteCmd)
	quoteCmd.Flags().StringVar(&walletAddr, "wallet", "", "Maker address (defaults to the configured key for --from-chain)")
}

func addRouteFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&fromChain, "from-chain", 0, "Source chain id (REQUIRED)")
	cmd.Flags().IntVar(&toChain, "to-chain", 0, "Destination chain id (REQUIRED)")
	cmd.Flags().Int32Var(&decimals, "decimals", 18, "Decimals of the source token")
	cmd.Flags().Int32Var(&dstDecimals, "dst-decimals", -1, "Decimals of the destination token (raw units when unset)")
	_ = cmd.MarkFlagRequired("from-chain")
	_ = cmd.MarkFlagRequired("to-chain")
}

// parseSwapArgs turns "<amount> <token> to <token>" plus the route flags
// into a validated request with the amount in base units
func parseSwapArgs(args []string) (*types.SwapRequest, error) {
	req, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		return nil, err
	}
	req.SourceChain = fromChain
	req.DestChain = toChain
	req.Decimals = decimals

	req.AmountRaw, err = parser.ToBaseUnits(req.Amount, decimals)
	if err != nil {
		return nil, err
	}
	if err := parser.ValidateSwapRequest(req); err != nil {
		return nil, err
	}
	return req, nil
}

func runQuote(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	req, err := parseSwapArgs(args)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	a := mustLoadApp(cmd)
	defer a.close()

	maker := walletAddr
	if maker == "" {
		w, closeWallet, err := a.wallet(req.SourceChain, true)
		if err != nil {
			printError(fmt.Errorf("%w (or pass --wallet)", err))
			os.Exit(1)
		}
		maker = w.Address()
		closeWallet()
	}
	if maker, err = parser.NormalizeAddress(maker); err != nil {
		printError(err)
		os.Exit(1)
	}

	var notifier notify.Notifier = notify.Nop{}
	if !jsonOutput {
		notifier = notify.NewConsole(os.Stdout)
	}
	notifier.Notify(notify.Notification{Level: notify.Loading, Message: "Fetching quote..."})

	quote, err := swap.NewQuoteClient(a.api, a.logger).GetQuote(cmd.Context(), swap.Params{
		SrcChain:  req.SourceChain,
		DstChain:  req.DestChain,
		SrcToken:  req.SourceToken,
		DstToken:  req.DestToken,
		AmountRaw: req.AmountRaw,
		Wallet:    maker,
	})
	notifier.Clear()
	if err != nil {
		printError(fmt.Errorf("%s", swap.UserMessage(err)))
		os.Exit(1)
	}

	if jsonOutput {
		output, _ := json.MarshalIndent(quote, "", "  ")
		fmt.Println(string(output))
		return
	}
	displayQuote(quote, req)
}

func displayQuote(q *types.Quote, req *types.SwapRequest) {
	fmt.Println("\n" + rule(60))
	color.Green("                     SWAP QUOTE")
	fmt.Println(rule(60))

	fmt.Printf("\n  Quote ID:          %s\n", color.CyanString(q.QuoteID))
	fmt.Printf("  From:              %s %s\n", req.Amount, color.YellowString(q.SrcToken))
	fmt.Printf("  To:                ~%s %s\n", formatAmount(q.DstAmount, dstDecimals), color.YellowString(q.DstToken))
	fmt.Printf("  Source Chain:      %d\n", q.SrcChain)
	fmt.Printf("  Destination Chain: %d\n", q.DstChain)

	if len(q.Presets) > 0 {
		names := make([]string, 0, len(q.Presets))
		for name := range q.Presets {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Println("\n  Presets:")
		for _, name := range names {
			p := q.Presets[name]
			fmt.Printf("    %-8s auction %ds, %s -> %s\n", name, p.AuctionDuration,
				formatAmount(p.AuctionStartAmount, dstDecimals), formatAmount(p.AuctionEndAmount, dstDecimals))
		}
	}

	fmt.Println("\n" + rule(60) + "\n")
}

// formatAmount renders raw units as a decimal when decimals is known
func formatAmount(raw string, decimals int32) string {
	if decimals < 0 || raw == "" {
		return raw
	}
	human, err := parser.FromBaseUnits(raw, decimals)
	if err != nil {
		return raw
	}
	return human
}
