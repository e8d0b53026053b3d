package driver

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CompilerOptions configures the external Cap'n Proto compiler run.
type CompilerOptions struct {
	// Path to the capnp binary; "capnp" resolves through PATH.
	Path string
	// ImportPaths are passed as -I flags.
	ImportPaths []string
	// NoStandardImport suppresses the built-in import path.
	NoStandardImport bool
}

func (o CompilerOptions) binary() string {
	if o.Path == "" {
		return "capnp"
	}
	return o.Path
}

// CompileError carries the compiler's own diagnostics verbatim.
type CompileError struct {
	ExitCode int
	Stderr   string
}

func (e *CompileError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = "no diagnostics"
	}
	return fmt.Sprintf("capnp compile failed (exit %d): %s", e.ExitCode, msg)
}

// Compile invokes `capnp compile -o-` on the given files and returns the
// raw encoded CodeGeneratorRequest from stdout. The compiler performs
// all parsing and import resolution; this process never reads schema
// text itself.
func Compile(ctx context.Context, opts CompilerOptions, dir string, files []string) ([]byte, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no schema files given")
	}

	args := []string{"compile", "-o-"}
	if opts.NoStandardImport {
		args = append(args, "--no-standard-import")
	}
	for _, p := range opts.ImportPaths {
		args = append(args, "-I"+p)
	}
	args = append(args, files...)

	cmd := exec.CommandContext(ctx, opts.binary(), args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, &CompileError{ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return nil, fmt.Errorf("run %s: %w", opts.binary(), err)
	}
	return stdout.Bytes(), nil
}
