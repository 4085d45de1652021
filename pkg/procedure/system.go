package procedure

import (
	"fmt"
	"math/rand/v2"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
)

// TempDirEnv overrides the base directory used by tmp and tmpdir.
const TempDirEnv = "KOMBI_TEMP_DIR"

// UserEnv overrides the identity returned by the user procedure.
const UserEnv = "KOMBI_USER"

func init() {
	Register("resolvepath", resolvePath)
	Register("user", currentUser)
	Register("rand", random)
	Register("tmp", tmpFile)
	Register("tmpdir", tmpDir)
	Register("env", func(args ...string) (any, error) {
		if err := requireArgs("env", args, 1); err != nil {
			return nil, err
		}
		return os.Getenv(args[0]), nil
	})
}

// TempBase returns the directory temporary files are created under.
func TempBase() string {
	if dir := os.Getenv(TempDirEnv); dir != "" {
		return dir
	}
	return os.TempDir()
}

func resolvePath(args ...string) (any, error) {
	if err := requireArgs("resolvepath", args, 1); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(args[0])
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

func currentUser(...string) (any, error) {
	if name := os.Getenv(UserEnv); name != "" {
		return name, nil
	}
	u, err := user.Current()
	if err != nil {
		return os.Getenv("USER"), nil
	}
	return u.Username, nil
}

// random returns a float in [0, 1) with no arguments, or an integer in
// [min, max] when both bounds are given.
func random(args ...string) (any, error) {
	if len(args) < 2 {
		return rand.Float64(), nil
	}
	lo, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil {
		return nil, fmt.Errorf("rand: invalid min %q", args[0])
	}
	hi, err := strconv.Atoi(strings.TrimSpace(args[1]))
	if err != nil {
		return nil, fmt.Errorf("rand: invalid max %q", args[1])
	}
	if hi < lo {
		return nil, fmt.Errorf("rand: max %d is lower than min %d", hi, lo)
	}
	return lo + rand.IntN(hi-lo+1), nil
}

// tmpFile creates an empty temporary file and returns its path. An optional
// argument is used as the file extension.
func tmpFile(args ...string) (any, error) {
	pattern := "kombi-*"
	if len(args) > 0 && args[0] != "" {
		pattern += "." + strings.TrimPrefix(args[0], ".")
	}
	f, err := os.CreateTemp(TempBase(), pattern)
	if err != nil {
		return nil, err
	}
	name := f.Name()
	return name, f.Close()
}

// tmpDir creates a temporary directory and returns its path.
func tmpDir(...string) (any, error) {
	return os.MkdirTemp(TempBase(), "kombi-")
}
