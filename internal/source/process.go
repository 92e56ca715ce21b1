package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// ProcessSource attaches a spawned command's stdout and stderr to the
// ingestion path. Both pipes are consumed concurrently line by line, so
// batches handed to the sink are always row-aligned.
type ProcessSource struct {
	ds   DataSource
	link Link
}

// NewProcessSource creates a process adapter for ds.
func NewProcessSource(ds DataSource, link Link) *ProcessSource {
	return &ProcessSource{ds: ds, link: link}
}

// Descriptor returns the owning data source
func (s *ProcessSource) Descriptor() DataSource { return s.ds }

// Link returns the source's link
func (s *ProcessSource) Link() Link { return s.link }

// Run spawns the command and streams its output until it exits or the
// context is cancelled. Cancellation kills the child.
func (s *ProcessSource) Run(ctx context.Context, sink Sink) error {
	cmd := exec.CommandContext(ctx, s.ds.Command, s.ds.Args...)
	cmd.Dir = s.ds.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout handle: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr handle: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to spawn %s: %w", s.ds.Command, err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var scanMu sync.Mutex
	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := append(scanner.Bytes(), '\n')
			if err := sink.OnBytes(s.link, line); err != nil {
				scanMu.Lock()
				if scanErr == nil {
					scanErr = err
				}
				scanMu.Unlock()
				return
			}
		}
		if err := scanner.Err(); err != nil {
			scanMu.Lock()
			if scanErr == nil {
				scanErr = err
			}
			scanMu.Unlock()
		}
	}
	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()

	waitErr := cmd.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	if scanErr != nil {
		return fmt.Errorf("failed to read process output: %w", scanErr)
	}
	if waitErr != nil {
		return fmt.Errorf("process %s failed: %w", s.ds.Command, waitErr)
	}
	return nil
}
