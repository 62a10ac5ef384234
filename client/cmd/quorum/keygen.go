package quorum

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Yoga07/safe-farming/config"
	"github.com/Yoga07/safe-farming/node/crypto/threshold"
)

var (
	keygenThreshold int
	keygenMembers   int
	keygenOut       string
	keygenVeto      int
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Deal a fresh signer set and write one config per member",
	Long: `Deals a fresh threshold key set and writes a config for every member,
each holding its own key share, replica id and store. Intended for
development networks only: the dealer sees every secret share.`,
	Run: func(cmd *cobra.Command, args []string) {
		set, keys, err := threshold.Deal(rand.Reader, keygenThreshold, keygenMembers)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error dealing keys: %v\n", err)
			os.Exit(1)
		}

		for _, key := range keys {
			name := fmt.Sprintf("member-%d", key.Index())
			cfg := config.Config{
				Farming: &config.FarmingConfig{
					ReplicaId: name,
					Quorum: config.QuorumConfig{
						Threshold:       set.Threshold(),
						MasterPublicKey: set.MasterHex(),
						Members:         set.MembersHex(),
						SignerIndex:     key.Index(),
						SignerKey:       key.SecretHex(),
						VetoThreshold:   keygenVeto,
					},
				},
				DB: &config.DBConfig{
					Path: filepath.Join(keygenOut, name, "store"),
				},
			}.WithDefaults()

			path := filepath.Join(keygenOut, name+".yml")
			if err := config.SaveConfig(path, &cfg); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
				os.Exit(1)
			}
			fmt.Printf("Wrote %s\n", path)
		}

		fmt.Printf("Master public key: %s\n", set.MasterHex())
	},
}

func init() {
	keygenCmd.Flags().IntVar(&keygenThreshold, "threshold", 3, "shares required to certify a payout")
	keygenCmd.Flags().IntVar(&keygenMembers, "members", 5, "number of signers")
	keygenCmd.Flags().StringVar(&keygenOut, "out", filepath.Join(".", ".config", "quorum"), "directory for the member configs")
	keygenCmd.Flags().IntVar(&keygenVeto, "veto-threshold", 0, "rejections that terminate a round, 0 disables vetoes")
}
