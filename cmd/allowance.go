package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"xswap/pkg/parser"
	"xswap/pkg/swap"
	"xswap/pkg/wallet"
)

var (
	allowanceChain  int
	allowanceAmount string
	approveNow      bool
)

var allowanceCmd = &cobra.Command{
	Use:   "allowance <token>",
	Short: "Show the settlement allowance and balance of a token",
	Long: `Show how much of a token the configured wallet allows the settlement
contract to move, and optionally approve it.

Examples:
  xswap allowance 0xA0b8...eB48 --chain 1
  xswap allowance 0xA0b8...eB48 --chain 1 --amount 1500000
  xswap allowance 0xA0b8...eB48 --chain 1 --approve`,
	Args: cobra.ExactArgs(1),
	Run:  runAllowance,
}

func init() {
	rootCmd.AddCommand(allowanceCmd)

	allowanceCmd.Flags().IntVar(&allowanceChain, "chain", 0, "Chain id of the token (REQUIRED)")
	allowanceCmd.Flags().StringVar(&allowanceAmount, "amount", "", "Raw amount to check the allowance against")
	allowanceCmd.Flags().BoolVar(&approveNow, "approve", false, "Send the approval transaction when the allowance is short")
	_ = allowanceCmd.MarkFlagRequired("chain")
}

func runAllowance(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	ctx := cmd.Context()

	token, err := parser.NormalizeAddress(args[0])
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	a := mustLoadApp(cmd)
	defer a.close()

	w, closeWallet, err := a.wallet(allowanceChain, !approveNow)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer closeWallet()

	allowance, err := a.api.GetAllowance(ctx, token, w.Address(), allowanceChain)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	output := map[string]interface{}{
		"token":     token,
		"chain":     allowanceChain,
		"owner":     w.Address(),
		"allowance": allowance,
	}

	if balancer, ok := unwrapEVM(w); ok {
		if balance, err := balancer.TokenBalance(ctx, token); err == nil {
			output["balance"] = balance.String()
		} else {
			a.logger.Warn("failed to read token balance", "error", err)
		}
	}

	sufficient := true
	if allowanceAmount != "" {
		sufficient, err = swap.SufficientAllowance(allowance, allowanceAmount)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		output["amount"] = allowanceAmount
		output["sufficient"] = sufficient
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Println("\n" + rule(60))
		color.Green("                      ALLOWANCE")
		fmt.Println(rule(60))
		fmt.Printf("\n  Token:      %s\n", color.CyanString(token))
		fmt.Printf("  Chain:      %d\n", allowanceChain)
		fmt.Printf("  Owner:      %s\n", w.Address())
		fmt.Printf("  Allowance:  %s\n", allowance)
		if balance, ok := output["balance"]; ok {
			fmt.Printf("  Balance:    %s\n", balance)
		}
		if allowanceAmount != "" {
			if sufficient {
				fmt.Printf("  Amount:     %s %s\n", allowanceAmount, color.GreenString("(sufficient)"))
			} else {
				fmt.Printf("  Amount:     %s %s\n", allowanceAmount, color.RedString("(approval required)"))
			}
		}
		fmt.Println("\n" + rule(60) + "\n")
	}

	if !approveNow || sufficient && allowanceAmount != "" {
		return
	}

	flow := swap.NewApprovalFlow(a.api, w, a.logger)
	tx, err := flow.RequestApprovalTransaction(ctx, token, allowanceChain)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	hash, err := flow.Send(ctx, tx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	fmt.Printf("Approval sent: %s\n", color.CyanString(hash))
	if _, err := flow.Confirm(ctx, hash); err != nil {
		printError(err)
		os.Exit(1)
	}
	printSuccess("✓ Approval confirmed.")
}

func unwrapEVM(w wallet.Wallet) (*wallet.EVMWallet, bool) {
	switch v := w.(type) {
	case *wallet.EVMWallet:
		return v, true
	case *wallet.ConfirmingWallet:
		return unwrapEVM(v.Wallet)
	}
	return nil, false
}
