// Package validator statically vets Python submissions before they run.
//
// HOW IT WORKS:
// The submission is never executed here. A fixed checker script (check.py,
// embedded in the binary) is handed to the host interpreter, which parses the
// submission with its own ast module and walks the tree breadth-first:
//
//	stdin  → {"code": "...", "allowed": [...], "denied": [...]}
//	stdout ← {} | {"kind": "disallowed_import", "name": "os"} | {"kind": "syntax_error", "detail": "..."}
//
// CPython's own parser accepts exactly the grammar the code will later run
// under, f-strings and annotations included.
//
// The check is a fast first filter, not a sandbox. It only sees what is
// spelled out in the syntax tree: aliased built-ins, attribute calls such as
// builtins.exec, and getattr indirection all pass. The process or container
// the executor starts is the boundary that has to hold.
package validator

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sakif/csv-extractor/internal/apperror"
)

//go:embed check.py
var checkScript string

// Verdict kinds written by check.py.
const (
	verdictSyntax = "syntax_error"
	verdictImport = "disallowed_import"
	verdictCall   = "disallowed_call"
)

// Config controls how the checker is run.
type Config struct {
	// Interpreter is the Python binary that parses submissions, a name looked
	// up in PATH or an absolute path.
	Interpreter string
	// Timeout bounds one check. Zero disables it.
	Timeout time.Duration
}

// DefaultConfig parses with python3 and gives up after ten seconds.
func DefaultConfig() Config {
	return Config{
		Interpreter: "python3",
		Timeout:     10 * time.Second,
	}
}

// Validator applies a Policy to submissions. It holds no per-call state and
// is safe for concurrent use.
type Validator struct {
	policy      Policy
	interpreter string
	timeout     time.Duration
}

// New creates a Validator for the given policy. The interpreter is resolved
// once so a missing Python fails at startup.
func New(policy Policy, cfg Config) (*Validator, error) {
	path, err := exec.LookPath(cfg.Interpreter)
	if err != nil {
		return nil, fmt.Errorf("validator: interpreter %q not found: %w", cfg.Interpreter, err)
	}
	return &Validator{
		policy:      policy,
		interpreter: path,
		timeout:     cfg.Timeout,
	}, nil
}

// Policy returns the policy this validator enforces.
func (v *Validator) Policy() Policy {
	return v.policy
}

type checkRequest struct {
	Code    string   `json:"code"`
	Allowed []string `json:"allowed"`
	Denied  []string `json:"denied"`
}

type verdict struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Detail string `json:"detail"`
}

// Validate parses code and walks the whole tree, returning the first
// violation in breadth-first order.
//
// The returned error is nil, an *apperror.AppError wrapping one of
// ErrSyntax, ErrDisallowedImport or ErrDisallowedCall, apperror.Timeout or
// apperror.Cancelled, or a plain error when the checker itself broke.
func (v *Validator) Validate(ctx context.Context, code string) error {
	allowed, denied := v.policy.Describe()
	input, err := json.Marshal(checkRequest{Code: code, Allowed: allowed, Denied: denied})
	if err != nil {
		return fmt.Errorf("validator: encoding request: %w", err)
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if v.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, v.timeout)
	}
	defer cancel()

	// -I keeps the user's site-packages and PYTHON* variables out of the checker.
	cmd := exec.CommandContext(runCtx, v.interpreter, "-I", "-c", checkScript)
	cmd.Env = []string{"PATH=" + os.Getenv("PATH"), "LANG=C.UTF-8"}
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		switch {
		case ctx.Err() != nil:
			return apperror.Cancelled()
		case runCtx.Err() != nil:
			return apperror.Timeout(v.timeout)
		}
		return fmt.Errorf("validator: running checker: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var out verdict
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return fmt.Errorf("validator: decoding checker output %q: %w", stdout.String(), err)
	}

	switch out.Kind {
	case "":
		return nil
	case verdictSyntax:
		return apperror.SyntaxError(out.Detail)
	case verdictImport:
		return apperror.DisallowedImport(out.Name)
	case verdictCall:
		return apperror.DisallowedCall(out.Name)
	}
	return fmt.Errorf("validator: unknown verdict %q", out.Kind)
}
