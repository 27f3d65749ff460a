package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mlrus/openr/crypto"
)

var keygenOutPath string

var keygenCmd = &cobra.Command{
	Use:     "keygen",
	Short:   "Generate an X25519 keypair",
	GroupID: "init",
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := crypto.NewKeypair()
		if err != nil {
			return err
		}
		if keygenOutPath != "" {
			if err := crypto.SaveKeypair(keygenOutPath, kp); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "wrote keypair to %s\n", keygenOutPath)
		}
		pub, err := kp.Public.MarshalText()
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", pub)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVarP(&keygenOutPath, "out", "o", "", "path to write the keypair to (required to use the key)")
}
