package infra

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	AppName = "momentum-go"
	Version = "0.3.0"
)

// ErrWorkspaceLocked means another process owns the workspace.
var ErrWorkspaceLocked = errors.New("workspace locked")

// Workspace is the directory holding runtime data: the lock file and the
// trade database.
type Workspace struct {
	Root string
}

// OpenWorkspace picks the workspace root and creates it. MOMENTUM_HOME wins,
// then an existing ./_workspace, then the per-user data directory.
func OpenWorkspace() (Workspace, error) {
	ws := Workspace{Root: workspaceRoot()}
	if err := os.MkdirAll(ws.Root, 0o755); err != nil {
		return Workspace{}, fmt.Errorf("create workspace %s: %w", ws.Root, err)
	}
	return ws, nil
}

func workspaceRoot() string {
	if p := os.Getenv("MOMENTUM_HOME"); p != "" {
		return p
	}
	if fi, err := os.Stat("_workspace"); err == nil && fi.IsDir() {
		return "_workspace"
	}
	if base := userDataDir(); base != "" {
		return filepath.Join(base, AppName)
	}
	return "_workspace"
}

// userDataDir follows XDG on unix. macOS and Windows keep app data under
// the same roots as config.
func userDataDir() string {
	if p := os.Getenv("XDG_DATA_HOME"); p != "" {
		return p
	}
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		dir, _ := os.UserConfigDir()
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share")
}

// Path joins elem under the workspace root.
func (w Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.Root}, elem...)...)
}

// DatabasePath resolves the trade database location. Relative overrides are
// taken as-is; an empty override uses data/momentum.db in the workspace.
// The parent directory is created.
func (w Workspace) DatabasePath(override string) (string, error) {
	p := override
	if p == "" {
		p = w.Path("data", "momentum.db")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return p, nil
}

// Lock claims the workspace for this process. The returned func releases it.
func (w Workspace) Lock() (func(), error) {
	path := w.Path("instance.lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if errors.Is(err, os.ErrExist) {
		owner, _ := os.ReadFile(path)
		return nil, fmt.Errorf("%w: %s held by pid %s", ErrWorkspaceLocked, path, strings.TrimSpace(string(owner)))
	}
	if err != nil {
		return nil, err
	}
	_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write lock file: %w", werr)
	}
	return func() { os.Remove(path) }, nil
}

// ResolveConfigPath returns the first existing candidate among
// MOMENTUM_CONFIG, configs/config.yaml and the per-user config dir. The
// env var is returned even if missing so the load error names it.
func ResolveConfigPath() string {
	if p := os.Getenv("MOMENTUM_CONFIG"); p != "" {
		return p
	}
	local := filepath.Join("configs", "config.yaml")
	candidates := []string{local}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, AppName, "config.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return local
}
