// Package consoleops implements the GCS operator's manual control console
// (`gcs --control-manual`), a supplemented feature beyond spec.md's core
// scope (see SPEC_FULL.md's SUPPLEMENTED FEATURES). Grounded field-for-
// field on the teacher's inputcommands/commands.go: a bufio.Scanner over
// stdin dispatching line commands, logging failures rather than exiting.
package consoleops

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/Kamalbura/research-sub001/internal/control"
)

const (
	cmdQuit   = "quit"
	cmdStatus = "status"
	cmdRekey  = "rekey"
	cmdHelp   = "help"
)

// Console reads operator commands from stdin and drives a GCS-role
// control.State. Run blocks until stdin closes or ctx is cancelled.
type Console struct {
	state *control.State
}

// New returns a Console bound to a GCS-role control state.
func New(state *control.State) *Console {
	return &Console{state: state}
}

// Run blocks reading lines from stdin until EOF, ctx cancellation, or a
// "quit" command.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("manual control console ready; type 'help' for commands")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch strings.ToLower(fields[0]) {
		case cmdQuit:
			log.Println("quit received, shutting down")
			cancel()
			return
		case cmdStatus:
			c.printStatus()
		case cmdRekey:
			c.handleRekey(fields)
		case cmdHelp:
			printHelp()
		default:
			fmt.Printf("unrecognized command %q, type 'help'\n", fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("consoleops: error reading stdin: %v", err)
	}
}

func (c *Console) handleRekey(fields []string) {
	if len(fields) != 2 {
		fmt.Println("usage: rekey <suite-id>")
		return
	}
	rid, err := c.state.RequestPrepare(fields[1])
	if err != nil {
		log.Printf("rekey request rejected: %v", err)
		return
	}
	fmt.Printf("rekey requested toward %s, rid=%s\n", fields[1], rid)
}

func (c *Console) printStatus() {
	stats := c.state.Stats()
	fmt.Printf("phase=%s rekeys_ok=%d rekeys_fail=%d last_rekey_ms=%d last_rekey_suite=%s\n",
		c.state.Phase(), stats.RekeysOK, stats.RekeysFail, stats.LastRekeyMs, stats.LastRekeySuite)
}

func printHelp() {
	fmt.Println("commands: status | rekey <suite-id> | quit")
}
