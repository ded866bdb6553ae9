package infra

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestOpenWorkspace_HonoursEnv(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ws")
	t.Setenv("MOMENTUM_HOME", root)

	ws, err := OpenWorkspace()
	if err != nil {
		t.Fatalf("OpenWorkspace: %v", err)
	}
	if ws.Root != root {
		t.Fatalf("Root = %s, want %s", ws.Root, root)
	}
	if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
		t.Fatalf("workspace dir not created: %v", err)
	}
}

func TestWorkspace_DatabasePath(t *testing.T) {
	ws := Workspace{Root: t.TempDir()}

	p, err := ws.DatabasePath("")
	if err != nil {
		t.Fatal(err)
	}
	if p != filepath.Join(ws.Root, "data", "momentum.db") {
		t.Fatalf("default path = %s", p)
	}
	if _, err := os.Stat(filepath.Dir(p)); err != nil {
		t.Fatalf("data dir missing: %v", err)
	}

	custom := filepath.Join(t.TempDir(), "nested", "x.db")
	p, err = ws.DatabasePath(custom)
	if err != nil || p != custom {
		t.Fatalf("override = %s, %v", p, err)
	}
}

func TestWorkspace_LockIsExclusive(t *testing.T) {
	ws := Workspace{Root: t.TempDir()}

	unlock, err := ws.Lock()
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	raw, _ := os.ReadFile(ws.Path("instance.lock"))
	if strings.TrimSpace(string(raw)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("lock file holds %q", raw)
	}

	if _, err := ws.Lock(); !errors.Is(err, ErrWorkspaceLocked) {
		t.Fatalf("second lock err = %v, want ErrWorkspaceLocked", err)
	}

	unlock()
	unlock2, err := ws.Lock()
	if err != nil {
		t.Fatalf("relock after release: %v", err)
	}
	unlock2()
}

func TestResolveConfigPath_Env(t *testing.T) {
	t.Setenv("MOMENTUM_CONFIG", "/nowhere/cfg.yaml")
	if got := ResolveConfigPath(); got != "/nowhere/cfg.yaml" {
		t.Fatalf("got %s", got)
	}
}
