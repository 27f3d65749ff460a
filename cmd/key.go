package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mlrus/openr/store"
	"github.com/mlrus/openr/wire"
)

var keyCmd = &cobra.Command{
	Use:     "key",
	Short:   "Inspect and mutate keys in a running node's store",
	GroupID: "node",
}

var keyGetCmd = &cobra.Command{
	Use:   "get <key> [key...]",
	Short: "Fetch one or more keys",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigForClient()
		if err != nil {
			return err
		}
		var reply wire.KeyGetReply
		if err := storeRequest(cfg.LocalCommandAddr, wire.KindKeyGet, wire.KeyGetRequest{Keys: args}, &reply); err != nil {
			return err
		}
		printKeyVals(reply.KeyVals)
		return nil
	},
}

var keyDumpPrefix string

var keyDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump all keys, optionally filtered by a prefix",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigForClient()
		if err != nil {
			return err
		}
		req := wire.KeyDumpRequest{Prefix: keyDumpPrefix, HasPrefix: keyDumpPrefix != ""}
		var reply wire.KeyDumpReply
		if err := storeRequest(cfg.LocalCommandAddr, wire.KindKeyDump, req, &reply); err != nil {
			return err
		}
		printKeyVals(reply.KeyVals)
		return nil
	},
}

var (
	keySetForce bool
	keySetTtlMs int64
)

var keySetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a key, published under this node's own originator identity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigForClient()
		if err != nil {
			return err
		}
		key, value := args[0], args[1]
		// The CLI has no view of the store's current version counter for
		// key, so it stamps a wall-clock version the way an out-of-band
		// debugging tool can without colliding with the daemon's own
		// monotonic originator-local counters.
		version := uint64(time.Now().UnixNano())
		val := wire.Value{
			Version:      version,
			OriginatorId: cfg.NodeId,
			Value:        []byte(value),
			HasValue:     true,
			TtlMs:        keySetTtlMs,
		}
		val.Hash = store.ComputeHash(val.Version, val.OriginatorId, val.Value, val.HasValue)
		req := wire.KeySetRequest{Records: map[string]wire.Value{key: val}, Force: keySetForce}
		var reply wire.KeySetReply
		if err := storeRequest(cfg.LocalCommandAddr, wire.KindKeySet, req, &reply); err != nil {
			return err
		}
		fmt.Printf("accepted, %d key(s) changed\n", len(reply.Delta.KeyVals))
		return nil
	},
}

func printKeyVals(kv map[string]wire.Value) {
	for k, v := range kv {
		fmt.Printf("%s: version=%d originator=%s ttl_ms=%d ttl_version=%d value=%q\n",
			k, v.Version, v.OriginatorId, v.TtlMs, v.TtlVersion, v.Value)
	}
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keyGetCmd, keyDumpCmd, keySetCmd)

	keyDumpCmd.Flags().StringVar(&keyDumpPrefix, "prefix", "", "only dump keys with this prefix")

	keySetCmd.Flags().BoolVar(&keySetForce, "force", false, "bypass the version/conflict check")
	keySetCmd.Flags().Int64Var(&keySetTtlMs, "ttl-ms", store.TTLInfinite, "ttl in milliseconds (-1 disables expiry)")
}
