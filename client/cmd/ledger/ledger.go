package ledger

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Yoga07/safe-farming/client/utils"
	"github.com/Yoga07/safe-farming/config"
)

var NodeConfig *config.Config

var LedgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspects a replica's persisted reward ledger",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("config")

		var err error
		NodeConfig, err = config.LoadConfig(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid config %s: %v\n", path, err)
			os.Exit(1)
		}
	},
}

func openReplica() *utils.Replica {
	replica, err := utils.OpenReplica(NodeConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening replica state: %v\n", err)
		os.Exit(1)
	}
	return replica
}

func init() {
	LedgerCmd.AddCommand(balanceCmd)
	LedgerCmd.AddCommand(certificatesCmd)
	LedgerCmd.AddCommand(rateCmd)
}
