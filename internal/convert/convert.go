// Package convert shells out to the external document converter that
// translates between a book's native packaging and the plain
// chapter/paragraph ledger form. The core only interprets its exit status;
// its output lines are forwarded for progress classification.
package convert

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
)

// Converter configures the external conversion process. Paths are explicit:
// the converter is a pure function of its inputs.
type Converter struct {
	// Command is the converter executable.
	Command string
	// Args are extra arguments placed before the input/output paths.
	Args []string
	// WorkDir is the working directory for the process.
	WorkDir string
	// Lines, when set, receives each output line (stdout and stderr
	// combined, in order).
	Lines func(string)
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// ExitError reports a converter that ran but exited non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("converter exited with status %d", e.Code)
}

// Run executes the converter for one document. A non-zero exit returns an
// *ExitError; the caller treats it as a fatal stage failure.
func (c *Converter) Run(ctx context.Context, inputPath, outputPath string) error {
	if c.Command == "" {
		return fmt.Errorf("no converter command configured")
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	args := append(append([]string{}, c.Args...), inputPath, outputPath)
	cmd := exec.CommandContext(ctx, c.Command, args...)
	cmd.Dir = c.WorkDir

	// One pipe for stdout and stderr keeps the combined lines ordered.
	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to open converter pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	logger.Info("running converter", "command", c.Command, "input", inputPath, "output", outputPath)
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return fmt.Errorf("failed to start converter: %w", err)
	}
	pw.Close() // child holds the write end now

	c.drain(pr, logger)
	pr.Close()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("converter failed: %w", err)
	}
	return nil
}

func (c *Converter) drain(r io.Reader, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		logger.Debug("converter output", "line", line)
		if c.Lines != nil {
			c.Lines(line)
		}
	}
}
