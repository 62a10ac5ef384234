package ledger

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var certificatesCmd = &cobra.Command{
	Use:   "certificates",
	Short: "List the payout certificates this replica applied",
	Run: func(cmd *cobra.Command, args []string) {
		replica := openReplica()
		defer replica.Close()

		iter, err := replica.Store.RangeCertificates()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading certificates: %v\n", err)
			os.Exit(1)
		}
		defer iter.Close()

		for iter.First(); iter.Valid(); iter.Next() {
			cert, err := iter.Value()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error decoding certificate: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf(
				"%s\t%s\t%d\t%s\n",
				cert.ProposalID,
				cert.Account,
				cert.Amount,
				cert.Expiry.Format(time.RFC3339),
			)
		}
	},
}
