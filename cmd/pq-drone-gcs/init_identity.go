package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Kamalbura/research-sub001/internal/identity"
	"github.com/Kamalbura/research-sub001/internal/pqprim"
	"github.com/Kamalbura/research-sub001/internal/suite"
)

var (
	initIdentitySuite     string
	initIdentityOutputDir string
)

var initIdentityCmd = &cobra.Command{
	Use:   "init-identity",
	Short: "Generate the GCS signing keypair used to authenticate ServerHello",
	Long: `init-identity generates a fresh signing keypair for the negotiated
signature scheme and writes it, plus a metadata sidecar, to --output-dir.
The GCS loads this keypair at startup; the drone is given only the
resulting public key, out of band, via --peer-pubkey-file.`,
	RunE: runInitIdentity,
}

func init() {
	rootCmd.AddCommand(initIdentityCmd)
	initIdentityCmd.Flags().StringVar(&initIdentitySuite, "suite", "cs-mlkem768-chacha20poly1305-mldsa65", "cipher suite whose signature scheme to generate a keypair for")
	initIdentityCmd.Flags().StringVar(&initIdentityOutputDir, "output-dir", "./identity", "directory to write the keypair and metadata into")
}

func runInitIdentity(cmd *cobra.Command, args []string) error {
	registry := suite.NewRegistry()
	suiteID, err := registry.Resolve(initIdentitySuite)
	if err != nil {
		return err
	}
	s, err := registry.Get(suiteID)
	if err != nil {
		return err
	}

	backend := pqprim.NewCirclBackend()
	if err := identity.Generate(initIdentityOutputDir, s.Sig.Token, backend); err != nil {
		return err
	}

	fmt.Printf("generated %s signing keypair in %s\n", s.Sig.Token, initIdentityOutputDir)
	return nil
}
