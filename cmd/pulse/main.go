package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/flowbit-labs/flowbit-pulse/internal/cli"
)

// Persistent flags that take a value as the next token.
var valueFlags = map[string]bool{
	"--dir":       true,
	"--api":       true,
	"--token":     true,
	"--format":    true,
	"--log-level": true,
	"--ordering":  true,
}

// isTaskRef matches "#12" and "12".
func isTaskRef(s string) bool {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	n, err := strconv.Atoi(s)
	return err == nil && n > 0
}

// rewriteTaskLookupArgs turns `pulse #12` into `pulse tasks show 12`.
//
// Cobra treats the first positional token as a subcommand, so argv is rewritten
// before parsing. Persistent flags may come first (`pulse --dir x #12`), so the
// first positional is searched for rather than assumed to be argv[1].
func rewriteTaskLookupArgs(argv []string) []string {
	at := firstPositional(argv)
	if at < 0 || !isTaskRef(argv[at]) {
		return argv
	}
	out := make([]string, 0, len(argv)+2)
	out = append(out, argv[:at]...)
	out = append(out, "tasks", "show", strings.TrimPrefix(strings.TrimSpace(argv[at]), "#"))
	out = append(out, argv[at+1:]...)
	return out
}

// firstPositional returns the index of the first non-flag token, or -1.
// Unknown flags are assumed to take no value so a task ref is never swallowed.
func firstPositional(argv []string) int {
	for i := 1; i < len(argv); i++ {
		a := strings.TrimSpace(argv[i])
		switch {
		case a == "":
			continue
		case a == "--":
			if i+1 < len(argv) {
				return i + 1
			}
			return -1
		case strings.HasPrefix(a, "-"):
			if !strings.Contains(a, "=") && valueFlags[a] {
				i++
			}
			continue
		}
		return i
	}
	return -1
}

func main() {
	os.Args = rewriteTaskLookupArgs(os.Args)

	cmd := cli.NewRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
