// Package hook invokes the external program that performs the physical
// side of challenge provisioning: writing a file under a web root,
// creating a DNS TXT record, or whatever else the caller's hook script
// does. The core treats all of that as opaque.
package hook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	acmeErrors "github.com/yourusername/acmehook/errors"
)

// Verb is one of the six operations a hook program must support.
type Verb string

const (
	// Setup publishes a challenge's content. Args: domain, token, content.
	Setup Verb = "setup"
	// Activate signals that every Setup call for this batch has
	// completed. Takes no arguments.
	Activate Verb = "activate"
	// Check verifies a challenge is visible before telling the CA.
	// Args: domain, token, content. Failure here is non-fatal.
	Check Verb = "check"
	// Remove tears down a challenge. Args: domain, token, content.
	Remove Verb = "remove"
	// Finish signals that every Remove call for this batch has
	// completed. Takes no arguments.
	Finish Verb = "finish"
	// Write delivers an issued certificate chain on stdin. Args:
	// a path the hook should associate the certificate with.
	Write Verb = "write"
)

// Runner is the interface the Order driver and Session depend on; tests
// substitute an in-process fake rather than spawning real processes.
type Runner interface {
	Run(ctx context.Context, verb Verb, args []string, stdin []byte) ([]byte, error)
}

// Hook runs an external program as `<path> <leadingArgs...> <verb> <args...>`.
// A non-zero exit is reported as an error carrying stderr.
type Hook struct {
	Path        string
	LeadingArgs []string
	Logger      *slog.Logger
}

func New(path string, leadingArgs []string, l *slog.Logger) *Hook {
	return &Hook{Path: path, LeadingArgs: leadingArgs, Logger: l}
}

// Run executes the hook for verb with args, feeding stdin to the child
// process if non-nil, and returns stdout. Both stdout and stderr are
// drained concurrently so a chatty child cannot deadlock on a full pipe
// while this blocks on the other.
func (h *Hook) Run(ctx context.Context, verb Verb, args []string, stdin []byte) ([]byte, error) {
	full := append(append([]string{}, h.LeadingArgs...), string(verb))
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, h.Path, full...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, acmeErrors.Wrap(err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, acmeErrors.Wrap(err)
	}

	if err := cmd.Start(); err != nil {
		return nil, acmeErrors.Wrap(fmt.Errorf("hook: starting %s %v: %w", h.Path, full, err))
	}

	var stdout, stderr []byte
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		stdout, _ = io.ReadAll(stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		stderr, _ = io.ReadAll(stderrPipe)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		h.Logger.Error("hook failed", "verb", verb, "args", args, "stderr", string(stderr))
		return nil, acmeErrors.Wrap(fmt.Errorf("hook: %s %v exited with error: %w: %s", verb, args, err, stderr))
	}

	return stdout, nil
}
