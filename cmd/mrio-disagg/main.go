// Command mrio-disagg disaggregates a multi-regional input-output table.
package main

import "github.com/pik-piam/mrio-disagg/cmd/mrio-disagg/cmd"

func main() {
	cmd.Execute()
}
