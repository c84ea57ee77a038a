package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/hmukwana/trade-alerts-firebase/internal/auth"
	"github.com/hmukwana/trade-alerts-firebase/internal/copytrading"
	"github.com/spf13/cobra"
)

var rolloverCmd = &cobra.Command{
	Use:   "rollover",
	Short: "Run the monthly dashboard rollover now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.service.OnSchedule(cmd.Context())
		if err != nil {
			return err
		}

		return printJSON(result)
	},
}

var (
	resetUserID  string
	resetBalance float64
)

var resetDashboardCmd = &cobra.Command{
	Use:   "reset-dashboard",
	Short: "Reset a user's dashboard to a new balance and clear their trades",
	Long: `Overwrite the dashboard of a user with a fresh one holding only the new balance,
and delete every child trade of that user.

Example:
  journal reset-dashboard --user 3fQ9... --balance 10000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.service.ResetDashboard(cmd.Context(), resetUserID, resetBalance); err != nil {
			return err
		}

		fmt.Printf("Dashboard of %s reset to %.2f\n", resetUserID, resetBalance)

		return nil
	},
}

var masterReq copytrading.CreateMasterTradeRequest

var createMasterTradeCmd = &cobra.Command{
	Use:   "create-master-trade",
	Short: "Create a master trade and fan it out to subscribers",
	Long: `Validate and store a master trade with status "active", then create
a child trade for every subscribed user.

A repeated call with the same --idempotency-key reuses the stored master trade
and only creates the child trades that are still missing.

Example:
  journal create-master-trade --type Buy --price 100 --tp 110 --sl 95 --idempotency-key signal-42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		master, result, err := a.service.CreateMasterTrade(cmd.Context(), masterReq)
		if master.ID == "" {
			return err
		}

		if perr := printJSON(map[string]any{
			"master": master,
			"result": result,
		}); perr != nil {
			return perr
		}

		return err
	},
}

var (
	settleMasterID string
	settleStatus   string
)

var settleCmd = &cobra.Command{
	Use:   "settle",
	Short: "Set the status of a master trade and settle its child trades",
	Long: `Persist a new master trade status. A terminal status (win, loss, breakeven,
canceled) settles every unsettled child trade exactly once.

Example:
  journal settle --id 01J... --status win`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.service.UpdateMasterTradeStatus(cmd.Context(), settleMasterID, settleStatus)
		if result.MasterID == "" {
			return err
		}

		if perr := printJSON(result); perr != nil {
			return perr
		}

		return err
	},
}

var tokenSubject string

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Issue an operator bearer token for the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.AdminJWTSecret == "" {
			return errors.New("ADMIN_JWT_SECRET is not set")
		}

		token, err := auth.NewService(cfg.AdminJWTSecret, operatorTokenTTL).GenerateToken(tokenSubject)
		if err != nil {
			return err
		}

		fmt.Println(token)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(rolloverCmd, resetDashboardCmd, createMasterTradeCmd, settleCmd, issueTokenCmd)

	resetDashboardCmd.Flags().StringVarP(&resetUserID, "user", "u", "", "user id (required)")
	resetDashboardCmd.Flags().Float64VarP(&resetBalance, "balance", "b", 0, "new balance, must be positive (required)")
	resetDashboardCmd.MarkFlagRequired("user")
	resetDashboardCmd.MarkFlagRequired("balance")

	createMasterTradeCmd.Flags().StringVarP(&masterReq.Type, "type", "t", "", "Buy or Sell (required)")
	createMasterTradeCmd.Flags().Float64VarP(&masterReq.Price, "price", "p", 0, "entry price (required)")
	createMasterTradeCmd.Flags().Float64Var(&masterReq.TP, "tp", 0, "take profit (required)")
	createMasterTradeCmd.Flags().Float64Var(&masterReq.SL, "sl", 0, "stop loss (required)")
	createMasterTradeCmd.Flags().StringVar(&masterReq.IdempotencyKey, "idempotency-key", "", "client key that makes retries reuse the same master trade")
	for _, name := range []string{"type", "price", "tp", "sl"} {
		createMasterTradeCmd.MarkFlagRequired(name)
	}

	settleCmd.Flags().StringVar(&settleMasterID, "id", "", "master trade id (required)")
	settleCmd.Flags().StringVarP(&settleStatus, "status", "s", "", "new status: win, loss, breakeven, canceled (required)")
	settleCmd.MarkFlagRequired("id")
	settleCmd.MarkFlagRequired("status")

	issueTokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "token subject")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
