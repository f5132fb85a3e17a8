package settings

import "fmt"

const CmdName = "wattprof"

// ResultFile is the default per-run row stream location.
func ResultFile(pid int) string {
	return fmt.Sprintf("%s-%d.csv", CmdName, pid)
}
