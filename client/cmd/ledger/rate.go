package ledger

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Yoga07/safe-farming/node/farming/rate"
)

var bytesToPrice uint64

var rateCmd = &cobra.Command{
	Use:   "rate [usage]",
	Short: "Print the reward rate at a usage level, or at the replica's own view",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		curve, err := rate.NewCurve(NodeConfig.Farming.Capacity, NodeConfig.Farming.RateCurve)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error building rate curve: %v\n", err)
			os.Exit(1)
		}

		var usage uint64
		if len(args) == 1 {
			usage, err = strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid usage %q: %v\n", args[0], err)
				os.Exit(1)
			}
		} else {
			replica := openReplica()
			usage = replica.Engine.TotalUsage()
			replica.Close()
		}

		r := curve.Rate(usage)
		fmt.Printf("Usage: %d of %d\n", usage, curve.Capacity())
		fmt.Printf("Rate: %s\n", r.String())

		if bytesToPrice > 0 {
			rewards := rate.NewStorageRewards(NodeConfig.Farming.BaseCost)
			cost, err := rewards.WorkCost(bytesToPrice)
			if err == nil {
				var reward uint64
				reward, err = rewards.TotalReward(r, cost)
				fmt.Printf("Reward for %d bytes: %d\n", bytesToPrice, reward)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error pricing %d bytes: %v\n", bytesToPrice, err)
				os.Exit(1)
			}
		}
	},
}

func init() {
	rateCmd.Flags().Uint64Var(&bytesToPrice, "bytes", 0, "also price storing this many bytes")
}
