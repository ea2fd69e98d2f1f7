package validator

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/csv-extractor/internal/apperror"
)

// newTestValidator skips the test when no python3 is installed.
func newTestValidator(t *testing.T, policy Policy) *Validator {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	v, err := New(policy, DefaultConfig())
	require.NoError(t, err)
	return v
}

func validate(v *Validator, code string) error {
	return v.Validate(context.Background(), code)
}

func lines(l ...string) string {
	return strings.Join(l, "\n") + "\n"
}

// requireViolation asserts err wraps sentinel and names ident.
func requireViolation(t *testing.T, err error, sentinel error, ident string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel), "error %v should wrap %v", err, sentinel)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ident, appErr.Field)
}

func TestValidate_AllowedCode(t *testing.T) {
	v := newTestValidator(t, DefaultPolicy())

	tests := []struct {
		name string
		code string
	}{
		{"empty submission", ""},
		{"plain print", `print("hello")`},
		{"aliased allowed imports", lines(
			"import pandas as pd",
			"import numpy as np",
			"df = pd.DataFrame({'a': np.arange(3)})",
			"df.to_csv('output.csv', index=False)",
			"print('output.csv')",
		)},
		{"dotted allowed import", "import numpy.linalg\n"},
		{"from-import of allowed module", "from pandas import DataFrame, read_csv\n"},
		{"from-import of allowed submodule", "from pandas.api import types\n"},
		{"relative import has no module to check", "from . import helpers\n"},
		{"method named like a denied built-in", lines(
			"import pandas as pd",
			"store = pd.HDFStore('x.h5')",
			"store.open()",
		)},
		{"denied name used without a call", "fn = open\n"},
		{"f-string", lines(
			"import pandas as pd",
			"x = 1",
			`print(f"rows={x}")`,
		)},
		{"variable annotation", "x: int = 3\n"},
		{"assignment expression", "if (n := 3) > 2:\n    print(n)\n"},
		{"underscored numeric literal", "print(1_000)\n"},
		{"dict unpacking", "d = {**{}, 'a': 1}\n"},
		{"positional-only parameters", "def f(a, /, b):\n    return a + b\n"},
		{"async function", "async def g():\n    return 1\n"},
		{"non-ascii text", `print("héllo ☃")`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, validate(v, tt.code))
		})
	}
}

func TestValidate_DisallowedImport(t *testing.T) {
	v := newTestValidator(t, DefaultPolicy())

	tests := []struct {
		name   string
		code   string
		module string
	}{
		{"top level", "import os\n", "os"},
		{"dotted name reported as written", "import os.path\n", "os.path"},
		{"second name in one statement", "import numpy, subprocess\n", "subprocess"},
		{"from-import", "from shutil import rmtree\n", "shutil"},
		{"prefix of an allowed name is not allowed", "import pandasx\n", "pandasx"},
		{"inside a function", lines(
			"def load():",
			"    import socket",
			"    return socket",
		), "socket"},
		{"inside a conditional", lines(
			"if True:",
			"    import sys",
		), "sys"},
		{"inside a class method", lines(
			"class Loader:",
			"    def run(self):",
			"        for _ in range(3):",
			"            from urllib import request",
		), "urllib"},
		{"inside try/except", lines(
			"try:",
			"    import ctypes",
			"except Exception:",
			"    pass",
		), "ctypes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireViolation(t, validate(v, tt.code), apperror.ErrDisallowedImport, tt.module)
		})
	}
}

func TestValidate_DisallowedCall(t *testing.T) {
	v := newTestValidator(t, DefaultPolicy())

	tests := []struct {
		name string
		code string
		call string
	}{
		{"exec at top level", `exec("print(1)")`, "exec"},
		{"eval in an expression", "x = 1 + eval('2')\n", "eval"},
		{"open as a context manager", lines(
			"with open('/etc/passwd') as fh:",
			"    print(fh.read())",
		), "open"},
		{"inside a nested function", lines(
			"def outer():",
			"    def inner():",
			"        return eval('1')",
			"    return inner()",
		), "eval"},
		{"inside a lambda", "f = lambda: exec('x = 1')\n", "exec"},
		{"as an argument to another call", "print(open('x'))\n", "open"},
		{"inside a comprehension", "rows = [eval(s) for s in ['1', '2']]\n", "eval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireViolation(t, validate(v, tt.code), apperror.ErrDisallowedCall, tt.call)
		})
	}
}

func TestValidate_SyntaxError(t *testing.T) {
	v := newTestValidator(t, DefaultPolicy())

	for _, code := range []string{
		`print("missing paren"`,
		"def broken(:\n    pass\n",
		"if True\n    x = 1\n",
	} {
		err := validate(v, code)
		require.Error(t, err, "code %q should not parse", code)
		assert.True(t, errors.Is(err, apperror.ErrSyntax), "got %v", err)

		var appErr *apperror.AppError
		require.True(t, errors.As(err, &appErr))
		assert.NotEmpty(t, appErr.Detail)
	}
}

func TestValidate_ReportsFirstViolationBreadthFirst(t *testing.T) {
	v := newTestValidator(t, DefaultPolicy())

	tests := []struct {
		name     string
		code     string
		sentinel error
		ident    string
	}{
		{"statement order at one level", lines(
			"import os",
			"import subprocess",
			"eval('1')",
		), apperror.ErrDisallowedImport, "os"},
		{"shallow import before nested import", lines(
			"def f():",
			"    import os",
			"import sys",
		), apperror.ErrDisallowedImport, "sys"},
		{"shallow call before nested call", lines(
			"def f():",
			"    eval('1')",
			"exec('2')",
		), apperror.ErrDisallowedCall, "exec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireViolation(t, validate(v, tt.code), tt.sentinel, tt.ident)
		})
	}
}

func TestValidate_Cancelled(t *testing.T) {
	v := newTestValidator(t, DefaultPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := v.Validate(ctx, "print(1)\n")
	assert.ErrorIs(t, err, apperror.ErrCancelled)
}

func TestNew_MissingInterpreter(t *testing.T) {
	_, err := New(DefaultPolicy(), Config{Interpreter: "no-such-python-binary", Timeout: time.Second})
	assert.Error(t, err)
}

func TestValidate_CustomPolicy(t *testing.T) {
	v := newTestValidator(t, NewPolicy([]string{"csv", " "}, []string{"print"}))

	assert.NoError(t, validate(v, "import csv\n"))
	requireViolation(t, validate(v, "import pandas\n"), apperror.ErrDisallowedImport, "pandas")
	requireViolation(t, validate(v, "print(1)\n"), apperror.ErrDisallowedCall, "print")
	// exec is only denied by the default policy.
	assert.NoError(t, validate(v, "exec('1')\n"))
}

func TestPolicy_Describe(t *testing.T) {
	allowed, denied := DefaultPolicy().Describe()

	assert.Equal(t, []string{"numpy", "pandas"}, allowed)
	assert.Equal(t, []string{"eval", "exec", "open"}, denied)
}

func TestPolicy_ImportAllowed(t *testing.T) {
	p := DefaultPolicy()

	assert.True(t, p.ImportAllowed("pandas"))
	assert.True(t, p.ImportAllowed("pandas.io.formats"))
	assert.False(t, p.ImportAllowed("os"))
	assert.False(t, p.ImportAllowed(""))
}
