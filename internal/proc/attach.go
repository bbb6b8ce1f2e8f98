//go:build !windows
// +build !windows

package proc

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// Attach bridges the calling terminal directly to the channel: raw-mode
// stdin is forwarded to the process and live output is tee'd to stdout.
// Ctrl+Q detaches and returns control to the caller. The channel keeps
// running after detach; only the bridge is torn down.
func (c *Channel) Attach(ctx context.Context) error {
	c.mu.Lock()
	if c.killed {
		c.mu.Unlock()
		return fmt.Errorf("session %s is not running", c.Key)
	}
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to set raw mode: %w", err)
	}
	defer func() { _ = term.Restore(int(os.Stdin.Fd()), oldState) }()

	// Tee live output to stdout for the duration of the attach
	c.setTap(os.Stdout)
	defer c.setTap(nil)

	// Track the caller's window size while attached
	sigwinch := make(chan os.Signal, 1)
	signal.Notify(sigwinch, syscall.SIGWINCH)
	sigwinchDone := make(chan struct{})
	defer func() {
		signal.Stop(sigwinch)
		close(sigwinchDone)
	}()

	go func() {
		for {
			select {
			case <-sigwinchDone:
				return
			case _, ok := <-sigwinch:
				if !ok {
					return
				}
				if ws, err := pty.GetsizeFull(os.Stdin); err == nil {
					c.Resize(int(ws.Cols), int(ws.Rows))
				}
			}
		}
	}()
	// Initial resize
	sigwinch <- syscall.SIGWINCH

	detachCh := make(chan struct{})

	// Discard terminal capability replies arriving in the first 50ms
	startTime := time.Now()
	const controlSeqTimeout = 50 * time.Millisecond

	go func() {
		buf := make([]byte, 32)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				if err != io.EOF {
					procLog.Debug("attach_stdin_read_error")
				}
				return
			}
			if time.Since(startTime) < controlSeqTimeout {
				continue
			}
			// Ctrl+Q (ASCII 17) detaches
			if n == 1 && buf[0] == 17 {
				close(detachCh)
				cancel()
				return
			}
			c.Write(buf[:n])
		}
	}()

	exited := make(chan struct{})
	go func() {
		c.Wait()
		close(exited)
	}()

	select {
	case <-detachCh:
		return nil
	case <-exited:
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (c *Channel) setTap(w io.Writer) {
	c.tapMu.Lock()
	c.tap = w
	c.tapMu.Unlock()
}
