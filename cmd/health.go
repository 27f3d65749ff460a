package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mlrus/openr/wire"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Query a running node's health checker",
	GroupID: "node",
}

var healthPeekCmd = &cobra.Command{
	Use:   "peek",
	Short: "Print per-target ping/ack counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigForClient()
		if err != nil {
			return err
		}
		if cfg.HealthCommandAddr == "" {
			return fmt.Errorf("health_command_addr is not set in %s", configPath)
		}
		req := wire.HealthCheckerRequest{Cmd: wire.HealthPeek}
		var reply wire.HealthCheckerPeekReply
		if err := healthRequest(cfg.HealthCommandAddr, wire.KindHealthRequest, req, &reply); err != nil {
			return err
		}
		for name, info := range reply.Nodes {
			fmt.Printf("%s: ip=%s last_val_sent=%d last_ack_from_node=%d last_ack_to_node=%d neighbors=%v\n",
				name, info.IpAddress, info.LastValSent, info.LastAckFromNode, info.LastAckToNode, info.Neighbors)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.AddCommand(healthPeekCmd)
}
