package quorum

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Yoga07/safe-farming/client/utils"
	"github.com/Yoga07/safe-farming/config"
	ftypes "github.com/Yoga07/safe-farming/types/farming"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <certificate hex>",
	Short: "Check a canonically encoded payout certificate against the quorum key",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.LoadConfig(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid config %s: %v\n", path, err)
			os.Exit(1)
		}

		verifier, err := utils.LoadVerifier(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading quorum keys: %v\n", err)
			os.Exit(1)
		}

		data, err := hex.DecodeString(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid hex: %v\n", err)
			os.Exit(1)
		}

		cert := &ftypes.PayoutCertificate{}
		if err := cert.FromCanonicalBytes(data); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid certificate: %v\n", err)
			os.Exit(1)
		}

		if err := verifier.Verify(cert.Message(), cert.Signature); err != nil {
			fmt.Printf("INVALID %s: %v\n", cert.ProposalID, err)
			os.Exit(1)
		}
		fmt.Printf(
			"VALID %s pays %d to %s\n",
			cert.ProposalID,
			cert.Amount,
			cert.Account,
		)
	},
}
