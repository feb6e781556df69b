package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/MX-Development/SimonData-Connector/internal/config"
	"github.com/MX-Development/SimonData-Connector/internal/shopify"

	"github.com/spf13/cobra"
)

func init() {
	webhooksSubscribeCmd.Flags().String("shop", "", "shop domain, e.g. demo.myshopify.com")
	webhooksSubscribeCmd.Flags().String("token", "", "Admin API access token (default SHOPIFY_ACCESS_TOKEN)")
	webhooksSubscribeCmd.Flags().String("address", "", "public URL of /api/webhooks")
	webhooksSubscribeCmd.Flags().String("api-version", "", "Admin API version (default SHOPIFY_API_VERSION)")
	_ = webhooksSubscribeCmd.MarkFlagRequired("shop")
	_ = webhooksSubscribeCmd.MarkFlagRequired("address")

	webhooksCmd.AddCommand(webhooksSubscribeCmd)
	rootCmd.AddCommand(webhooksCmd)
}

var webhooksCmd = &cobra.Command{
	Use:   "webhooks",
	Short: "Manage Shopify webhook subscriptions",
}

var webhooksSubscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Subscribe the shop to every tracked webhook topic",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shop, _ := cmd.Flags().GetString("shop")
		address, _ := cmd.Flags().GetString("address")
		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			token = os.Getenv("SHOPIFY_ACCESS_TOKEN")
		}
		if token == "" {
			return fmt.Errorf("%w: --token or SHOPIFY_ACCESS_TOKEN", config.ErrMissingSetting)
		}
		version, _ := cmd.Flags().GetString("api-version")
		if version == "" {
			// Delivery settings are irrelevant here, so a partial config is fine.
			cfg, _ := config.Load()
			version = cfg.ShopifyAPIVersion
		}

		client := &shopify.AdminClient{
			ShopDomain:  shop,
			APIVersion:  version,
			AccessToken: token,
			HTTP:        &http.Client{Timeout: 15 * time.Second},
		}
		created, failed := client.Subscribe(cmd.Context(), address)

		out := cmd.OutOrStdout()
		for _, t := range created {
			fmt.Fprintf(out, "subscribed  %s\n", t)
		}
		for _, f := range failed {
			fmt.Fprintf(out, "failed      %s: %s\n", f.Topic, f.Error)
		}
		if len(failed) > 0 {
			return fmt.Errorf("%d of %d subscriptions failed", len(failed), len(failed)+len(created))
		}
		return nil
	},
}
