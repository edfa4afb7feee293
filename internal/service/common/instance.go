//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ps "github.com/mitchellh/go-ps"
)

// AnotherInstanceRunning reports whether a second copy of this binary is
// already running. The tool manages a single process-wide activation state,
// so a second instance would race the first on the event log and providers.
func AnotherInstanceRunning() (bool, error) {
	executable, err := os.Executable()
	if err != nil {
		return false, fmt.Errorf("resolve executable: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(executable), ".exe")

	processes, err := ps.Processes()
	if err != nil {
		return false, fmt.Errorf("list processes: %w", err)
	}

	ownPid := os.Getpid()

	for _, process := range processes {
		if process.Pid() == ownPid {
			continue
		}

		if strings.TrimSuffix(process.Executable(), ".exe") == name {
			return true, nil
		}
	}

	return false, nil
}
