// phinode runs a self-contained Φ-consensus node: it bootstraps a validator
// set from config, then drives local rounds of leader selection, block proof
// validation, quorum voting and reward calculation, exposing Prometheus
// metrics along the way. Useful for demos and for watching the consensus core
// behave; it speaks no network protocol.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
