// Command pq-drone-gcs runs either end of the post-quantum secure UDP
// transport proxy linking a drone and its ground control station,
// per spec.md. Grounded on the teacher's single-binary main.go plus
// SAGE-X-project-sage's cmd/sage-crypto multi-command cobra layout for
// the subcommand split (init-identity, gcs, drone, list-suites).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pq-drone-gcs",
	Short: "Post-quantum secure UDP transport proxy for a drone/GCS link",
	Long: `pq-drone-gcs runs one end of a post-quantum secure UDP transport
proxy: a TCP handshake negotiates an ML-KEM/ML-DSA cipher suite and
derives AEAD session keys, after which plaintext UDP traffic between a
local application and its peer is transparently encrypted, replay
protected, and rekeyable on demand without interrupting the data plane.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
