package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Kamalbura/research-sub001/internal/pqprim"
	"github.com/Kamalbura/research-sub001/internal/suite"
)

var listSuitesEnabledOnly bool

var listSuitesCmd = &cobra.Command{
	Use:   "list-suites",
	Short: "List registered cipher suites",
	Long: `list-suites prints every {kem, aead, sig} cipher suite this build
recognizes. With --enabled-only, it narrows the list to suites the
compiled-in primitive backend can actually negotiate.`,
	RunE: runListSuites,
}

func init() {
	rootCmd.AddCommand(listSuitesCmd)
	listSuitesCmd.Flags().BoolVar(&listSuitesEnabledOnly, "enabled-only", false, "only list suites the circl backend can serve")
}

func runListSuites(cmd *cobra.Command, args []string) error {
	registry := suite.NewRegistry()

	var suites []suite.Suite
	if listSuitesEnabledOnly {
		suites = registry.ListEnabled(pqprim.NewCirclBackend())
	} else {
		suites = registry.ListAll()
	}

	for _, s := range suites {
		fmt.Printf("%-48s kem=%-10s aead=%-18s sig=%-16s level=%s\n",
			s.SuiteID, s.KEM.Token, s.AEAD.Token, s.Sig.Token, s.NistLevel)
	}
	return nil
}
