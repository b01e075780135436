package mcp

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"
)

type Runtime struct {
	Name      string
	Installed bool
	Path      string
	Error     string
}

// RuntimeChecker resolves server commands before they are spawned so a
// missing runtime shows up as a readable status instead of an exec error.
type RuntimeChecker struct {
	mu       sync.Mutex
	runtimes map[string]*Runtime
	lookPath func(string) (string, error)
}

func NewRuntimeChecker() *RuntimeChecker {
	return &RuntimeChecker{
		runtimes: make(map[string]*Runtime),
		lookPath: exec.LookPath,
	}
}

// CheckCommand returns the resolved path of command or a hint on how to
// install it.
func (rc *RuntimeChecker) CheckCommand(command string) (*Runtime, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rt, ok := rc.runtimes[command]; ok {
		return rt, rt.err()
	}

	rt := &Runtime{Name: command}
	path, err := rc.lookPath(command)
	if err != nil {
		rt.Error = missingRuntimeHint(command)
	} else {
		rt.Installed = true
		rt.Path = path
	}
	rc.runtimes[command] = rt
	return rt, rt.err()
}

func (rt *Runtime) err() error {
	if rt.Installed {
		return nil
	}
	return fmt.Errorf("%s", rt.Error)
}

func missingRuntimeHint(command string) string {
	switch filepath.Base(command) {
	case "npx", "node", "npm":
		return fmt.Sprintf("%s not found (install Node.js to run this server)", command)
	case "uvx", "uv":
		return fmt.Sprintf("%s not found (install uv to run this server)", command)
	case "python", "python3":
		return fmt.Sprintf("%s not found (install Python 3 to run this server)", command)
	case "docker":
		return "docker not found (install Docker to run this server)"
	default:
		return fmt.Sprintf("%s not found in PATH", command)
	}
}
