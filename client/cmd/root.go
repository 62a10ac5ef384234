package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	clientConfig "github.com/Yoga07/safe-farming/client/cmd/config"
	"github.com/Yoga07/safe-farming/client/cmd/ledger"
	"github.com/Yoga07/safe-farming/client/cmd/quorum"
)

var rootCmd = &cobra.Command{
	Use:   "farmingctl",
	Short: "Storage reward farming client",
	Long: `farmingctl inspects the persisted state of a farming replica and
manages its configuration. It provides commands for reading balances and
applied payout certificates, pricing storage at the current rate and
provisioning threshold signer sets for development networks.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	defaultConfig := filepath.Join(".", ".config", "config.yml")
	for _, c := range []*cobra.Command{
		clientConfig.ConfigCmd,
		ledger.LedgerCmd,
		quorum.QuorumCmd,
	} {
		c.PersistentFlags().String("config", defaultConfig, "the configuration file")
		rootCmd.AddCommand(c)
	}
}
