package transfer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"
)

// CommandReplicator invokes an external transfer program once per batch:
//
//	<program> <args...> -R <dest> -N <threads> <paths...>
//
// The program owns its retry and backoff behavior; this side only captures
// stderr and surfaces the exit status.
type CommandReplicator struct {
	Program string
	Args    []string
	logger  *zap.Logger
}

// NewCommandReplicator creates a command-backed replicator.
func NewCommandReplicator(program string, args []string, logger *zap.Logger) *CommandReplicator {
	return &CommandReplicator{Program: program, Args: args, logger: logger}
}

// Replicate runs the transfer program for one batch. A non-zero exit is
// returned as a *StatusError carrying the captured stderr.
func (r *CommandReplicator) Replicate(ctx context.Context, dest string, threads int, paths []string) error {
	args := r.buildArgs(dest, threads, paths)

	cmd := exec.CommandContext(ctx, r.Program, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	r.logger.Debug("invoking transfer",
		zap.String("command", shellquote.Join(append([]string{r.Program}, args...)...)),
	)

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return &StatusError{Status: exitErr.ExitCode(), Stderr: stderr.String()}
	}
	return fmt.Errorf("failed to invoke %s: %w", r.Program, err)
}

func (r *CommandReplicator) buildArgs(dest string, threads int, paths []string) []string {
	args := make([]string, 0, len(r.Args)+4+len(paths))
	args = append(args, r.Args...)
	args = append(args, "-R", dest, "-N", strconv.Itoa(threads))
	args = append(args, paths...)
	return args
}
