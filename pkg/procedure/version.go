package procedure

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Version procedures scan a directory for "v001" style entries. Templates
// memoize calls, so a newver allocation stays stable within one template.
func init() {
	Register("newver", func(args ...string) (any, error) {
		latest, prefix, err := latestVersion("newver", args)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("%s%03d", prefix, latest+1), nil
	})
	Register("latestver", func(args ...string) (any, error) {
		latest, prefix, err := latestVersion("latestver", args)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("%s%03d", prefix, latest), nil
	})
}

func latestVersion(name string, args []string) (int, string, error) {
	if err := requireArgs(name, args, 1); err != nil {
		return 0, "", err
	}
	prefix := "v"
	if len(args) > 1 && args[1] != "" {
		prefix = args[1]
	}
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `(\d+)`)

	entries, err := os.ReadDir(args[0])
	if err != nil {
		if os.IsNotExist(err) {
			return 0, prefix, nil
		}
		return 0, "", err
	}
	latest := 0
	for _, entry := range entries {
		m := re.FindStringSubmatch(strings.TrimSpace(entry.Name()))
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > latest {
			latest = n
		}
	}
	return latest, prefix, nil
}
