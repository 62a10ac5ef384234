package ledger

import (
	"fmt"

	"github.com/spf13/cobra"

	ftypes "github.com/Yoga07/safe-farming/types/farming"
)

var balanceCmd = &cobra.Command{
	Use:   "balance [account]",
	Short: "Print the balance of an account, or of every account",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		replica := openReplica()
		defer replica.Close()

		accounts := replica.Engine.Accounts()
		if len(args) == 1 {
			accounts = []ftypes.AccountID{ftypes.AccountID(args[0])}
		}

		for _, account := range accounts {
			fmt.Printf("%s\t%d\n", account, replica.Engine.Balance(account))
		}
	},
}
