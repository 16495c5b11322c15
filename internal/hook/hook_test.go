package hook

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"go.akshayshah.org/attest"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hook.sh")
	attest.Ok(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestHookRunSuccess(t *testing.T) {
	t.Parallel()

	path := writeScript(t, `echo "$1 $2 $3"`)
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(path, nil, l)

	out, err := h.Run(context.Background(), Setup, []string{"example.org", "tok", "content"}, nil)
	attest.Ok(t, err)
	attest.Equal(t, string(out), "setup example.org tok\n")
}

func TestHookRunNonZeroExit(t *testing.T) {
	t.Parallel()

	path := writeScript(t, `echo "boom" >&2; exit 1`)
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(path, nil, l)

	_, err := h.Run(context.Background(), Activate, nil, nil)
	attest.Error(t, err)
	attest.Subsequence(t, err.Error(), "boom")
}

func TestHookRunStdin(t *testing.T) {
	t.Parallel()

	path := writeScript(t, `cat`)
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(path, nil, l)

	out, err := h.Run(context.Background(), Write, []string{"csr-path"}, []byte("certificate-bytes"))
	attest.Ok(t, err)
	attest.Equal(t, string(out), "certificate-bytes")
}

func TestHookLeadingArgs(t *testing.T) {
	t.Parallel()

	path := writeScript(t, `echo "$0 $1 $2"`)
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(path, []string{"--zone=example.org"}, l)

	out, err := h.Run(context.Background(), Finish, nil, nil)
	attest.Ok(t, err)
	attest.Subsequence(t, string(out), "--zone=example.org finish")
}
