package wizard

import (
	"fmt"

	"dbconsole/pkg/k8sres"
)

// Preview returns the resource summary lines shown beside the wizard.
// Totals that cannot be computed render as empty.
func Preview(v Values) []string {
	nodes := v.Nodes()
	lines := []string{fmt.Sprintf("Nº nodes: %d", nodes)}
	if v.Sharding {
		lines = append(lines,
			"Shards: "+v.ShardNr,
			"Configuration servers: "+v.ShardConfigServers,
		)
	}
	return append(lines,
		"CPU: "+k8sres.FormatTotal(v.CPU, nodes, "CPU"),
		"Memory: "+k8sres.FormatTotal(v.Memory, nodes, "GB"),
		"Disk: "+k8sres.FormatTotal(v.Disk, nodes, v.DiskUnit),
	)
}
