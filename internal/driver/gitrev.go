package driver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// MaterializeRevision checks schema files out of a git revision into a
// temporary directory, preserving their relative layout so imports keep
// resolving. The caller owns the cleanup function.
func MaterializeRevision(ctx context.Context, repoDir, rev string, files []string) (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", "capnp-diff-"+sanitizeRev(rev)+"-")
	if err != nil {
		return "", nil, fmt.Errorf("temp dir: %w", err)
	}
	cleanup = func() { _ = os.RemoveAll(dir) }

	for _, f := range files {
		content, err := gitShow(ctx, repoDir, rev, f)
		if err != nil {
			cleanup()
			return "", nil, err
		}
		dst := filepath.Join(dir, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("mkdir for %s: %w", f, err)
		}
		if err := os.WriteFile(dst, content, 0o644); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("write %s: %w", dst, err)
		}
	}
	return dir, cleanup, nil
}

// gitShow reads one file at a revision via `git show rev:path`.
func gitShow(ctx context.Context, repoDir, rev, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", "show", rev+":"+filepath.ToSlash(path))
	cmd.Dir = repoDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git show %s:%s: %s", rev, path, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func sanitizeRev(rev string) string {
	out := make([]rune, 0, len(rev))
	for _, r := range rev {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
