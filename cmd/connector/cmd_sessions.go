package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MX-Development/SimonData-Connector/internal/config"
	"github.com/MX-Development/SimonData-Connector/internal/db"
	"github.com/MX-Development/SimonData-Connector/internal/session"

	"github.com/spf13/cobra"
)

func init() {
	sessionsGetCmd.Flags().String("cart-token", "", "look up by cart token")
	sessionsGetCmd.Flags().String("customer-id", "", "look up by customer id")
	sessionsGetCmd.Flags().String("order-id", "", "look up by order id")
	sessionsGetCmd.MarkFlagsMutuallyExclusive("cart-token", "customer-id", "order-id")
	sessionsGetCmd.MarkFlagsOneRequired("cart-token", "customer-id", "order-id")

	sessionsCmd.AddCommand(sessionsGetCmd)
	rootCmd.AddCommand(sessionsCmd)
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored tracking sessions",
}

var sessionsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the session for a cart token, customer id or order id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _ := config.Load()
		if cfg.SessionsTable == "" {
			return fmt.Errorf("%w: SESSIONS_TABLE", config.ErrMissingSetting)
		}

		ctx := cmd.Context()
		awsCfg, err := db.LoadAWSConfig(ctx)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		clients := db.NewClients(awsCfg)
		store := session.NewDynamoStore(clients.DynamoDB, cfg.SessionsTable,
			session.WithCustomerIndex(cfg.SessionsCustomerIdx),
			session.WithOrderIndex(cfg.SessionsOrderIdx),
		)

		rec, err := lookup(cmd, store)
		if err != nil {
			return err
		}
		if rec == nil {
			return errors.New("no session found")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func lookup(cmd *cobra.Command, store session.Store) (*session.Record, error) {
	ctx := cmd.Context()
	if v, _ := cmd.Flags().GetString("cart-token"); v != "" {
		return store.FindByCartToken(ctx, v)
	}
	if v, _ := cmd.Flags().GetString("customer-id"); v != "" {
		return store.FindByCustomerID(ctx, v)
	}
	v, _ := cmd.Flags().GetString("order-id")
	return store.FindByOrderID(ctx, v)
}
