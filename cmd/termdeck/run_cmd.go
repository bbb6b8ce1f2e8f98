package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/asheshgoplani/termdeck/internal/proc"
)

// runDirect starts one process channel and attaches the calling terminal
// to it, bypassing the TUI. The command sees the same PTY setup sessions
// get inside the deck; Ctrl+Q detaches and kills it.
func runDirect(args []string) error {
	command := strings.Join(args, " ")

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getwd: %w", err)
	}

	exited := make(chan int, 1)
	ch, err := proc.Start("direct", cwd, command, nil,
		func([]byte) {},
		func(code int) { exited <- code },
	)
	if err != nil {
		return err
	}
	defer func() {
		ch.Kill()
		ch.Wait()
	}()

	if err := ch.Attach(context.Background()); err != nil {
		return err
	}

	select {
	case code := <-exited:
		if code != 0 && code != proc.KilledExitCode {
			return fmt.Errorf("process exited with code %d", code)
		}
	default:
		// Detached while still running; the deferred kill tears it down.
	}
	return nil
}
