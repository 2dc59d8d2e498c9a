package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"xswap/pkg/swap"
)

var secretCmd = &cobra.Command{
	Use:   "secret <order-hash> <secret>",
	Short: "Reveal the hashlock secret of an order",
	Long: `Submit the secret for an order once both escrows are deployed so the
resolver can complete the swap. Both values are 0x followed by 64 hex characters.`,
	Args: cobra.ExactArgs(2),
	Run:  runSecret,
}

func init() {
	rootCmd.AddCommand(secretCmd)
}

func runSecret(cmd *cobra.Command, args []string) {
	a := mustLoadApp(cmd)
	defer a.close()

	if err := swap.NewSecretRevealer(a.api).Reveal(cmd.Context(), args[0], args[1]); err != nil {
		printError(err)
		os.Exit(1)
	}
	printSuccess("✓ Secret submitted for order " + shortKey(args[0]))
}
