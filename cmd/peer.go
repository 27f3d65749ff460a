package cmd

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mlrus/openr/wire"
)

var peerCmd = &cobra.Command{
	Use:     "peer",
	Short:   "Manage a running node's peer table",
	GroupID: "node",
}

var (
	peerAddName      string
	peerAddPublish   string
	peerAddCommand   string
	peerAddPublicKey string
)

var peerAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a peer",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigForClient()
		if err != nil {
			return err
		}
		spec := wire.PeerSpec{PublishAddr: peerAddPublish, CommandAddr: peerAddCommand}
		if peerAddPublicKey != "" {
			key, err := base64.StdEncoding.DecodeString(peerAddPublicKey)
			if err != nil {
				return fmt.Errorf("public-key: %w", err)
			}
			spec.PublicKey = key
		}
		req := wire.PeerAddRequest{Peers: map[string]wire.PeerSpec{peerAddName: spec}}
		var reply wire.AckReply
		if err := storeRequest(cfg.LocalCommandAddr, wire.KindPeerAdd, req, &reply); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

var peerDelNames []string

var peerDelCmd = &cobra.Command{
	Use:   "del",
	Short: "Remove peers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigForClient()
		if err != nil {
			return err
		}
		req := wire.PeerDelRequest{Names: peerDelNames}
		var reply wire.AckReply
		if err := storeRequest(cfg.LocalCommandAddr, wire.KindPeerDel, req, &reply); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	},
}

var peerDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "List the current peer table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigForClient()
		if err != nil {
			return err
		}
		var reply wire.PeerDumpReply
		if err := storeRequest(cfg.LocalCommandAddr, wire.KindPeerDump, struct{}{}, &reply); err != nil {
			return err
		}
		for _, p := range reply.Peers {
			fmt.Printf("%s: publish=%s command=%s sync_pending=%v\n", p.Name, p.PublishAddr, p.CommandAddr, p.SyncPending)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(peerCmd)
	peerCmd.AddCommand(peerAddCmd, peerDelCmd, peerDumpCmd)

	peerAddCmd.Flags().StringVar(&peerAddName, "name", "", "peer name")
	peerAddCmd.Flags().StringVar(&peerAddPublish, "publish-addr", "", "peer publish endpoint")
	peerAddCmd.Flags().StringVar(&peerAddCommand, "command-addr", "", "peer command endpoint")
	peerAddCmd.Flags().StringVar(&peerAddPublicKey, "public-key", "", "peer's X25519 public key (base64), required when this node was started with encrypt: true")
	_ = peerAddCmd.MarkFlagRequired("name")
	_ = peerAddCmd.MarkFlagRequired("publish-addr")
	_ = peerAddCmd.MarkFlagRequired("command-addr")

	peerDelCmd.Flags().StringSliceVar(&peerDelNames, "name", nil, "peer name(s) to remove")
	_ = peerDelCmd.MarkFlagRequired("name")
}
