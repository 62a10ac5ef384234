package quorum

import (
	"github.com/spf13/cobra"
)

var QuorumCmd = &cobra.Command{
	Use:   "quorum",
	Short: "Manages threshold signer sets and checks payout certificates",
}

func init() {
	QuorumCmd.AddCommand(keygenCmd)
	QuorumCmd.AddCommand(verifyCmd)
}
