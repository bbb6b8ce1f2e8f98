//go:build !windows
// +build !windows

package proc

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/asheshgoplani/termdeck/internal/logging"
)

var procLog = logging.ForComponent(logging.CompProc)

// ErrSpawnFailed is returned when the child process could not be created.
// It is the only error surfaced synchronously from channel creation.
var ErrSpawnFailed = errors.New("proc: spawn failed")

// KilledExitCode is reported to OnExit when the process was killed
// explicitly rather than exiting on its own.
const KilledExitCode = -1

// readBufSize is the PTY read chunk size. Interactive programs emit small
// bursts, so a modest buffer keeps latency low without fragmenting output.
const readBufSize = 32 * 1024

// Channel owns a single PTY-backed child process: one per session key.
// Output and exit are delivered through the callbacks passed to Start,
// each on a dedicated reader goroutine. Exit is delivered exactly once,
// including when the process was killed via Kill.
type Channel struct {
	Key     string
	Cwd     string
	Command string
	Env     map[string]string

	cmd  *exec.Cmd
	ptmx *os.File

	mu     sync.Mutex
	killed bool
	cols   int
	rows   int

	onOutput func([]byte)
	onExit   func(int)
	exitOnce sync.Once

	started time.Time
	wg      sync.WaitGroup

	// attached output tap, tee'd alongside onOutput while non-nil
	tapMu sync.RWMutex
	tap   io.Writer
}

// Start spawns the child process for a session. If command is empty the
// user's shell is launched. env entries are appended to the inherited
// environment. onOutput and onExit may be nil.
func Start(key, cwd, command string, env map[string]string, onOutput func([]byte), onExit func(int)) (*Channel, error) {
	if command == "" {
		command = os.Getenv("SHELL")
		if command == "" {
			command = "/bin/bash"
		}
	}

	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Dir = cwd
	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env, "TERM=xterm-256color")
	for k, v := range env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		procLog.Error("spawn_failed",
			slog.String("session", key),
			slog.String("command", command),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	ch := &Channel{
		Key:      key,
		Cwd:      cwd,
		Command:  command,
		Env:      env,
		cmd:      cmd,
		ptmx:     ptmx,
		onOutput: onOutput,
		onExit:   onExit,
		started:  time.Now(),
	}

	ch.wg.Add(1)
	go ch.readLoop()

	procLog.Info("channel_started",
		slog.String("session", key),
		slog.String("cwd", cwd),
		slog.Int("pid", cmd.Process.Pid))
	return ch, nil
}

// readLoop pumps PTY output into the onOutput callback until the PTY
// closes, then reaps the process and delivers the exit code.
func (c *Channel) readLoop() {
	defer c.wg.Done()

	buf := make([]byte, readBufSize)
	for {
		n, err := c.ptmx.Read(buf)
		if n > 0 {
			// Callback owns the slice; the read buffer is reused.
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.tapMu.RLock()
			if c.tap != nil {
				_, _ = c.tap.Write(chunk)
			}
			c.tapMu.RUnlock()
			if c.onOutput != nil {
				c.onOutput(chunk)
			}
			logging.Aggregate(logging.CompProc, "output_chunk", len(chunk),
				slog.String("session", c.Key))
		}
		if err != nil {
			// EOF and EIO both mean the slave side is gone.
			break
		}
	}

	err := c.cmd.Wait()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = KilledExitCode
		}
	}
	c.mu.Lock()
	if c.killed {
		code = KilledExitCode
	}
	c.mu.Unlock()

	c.deliverExit(code)
}

// deliverExit fires the exit callback exactly once per channel.
func (c *Channel) deliverExit(code int) {
	c.exitOnce.Do(func() {
		procLog.Info("channel_exited",
			slog.String("session", c.Key),
			slog.Int("code", code))
		if c.onExit != nil {
			c.onExit(code)
		}
	})
}

// Write sends input bytes to the process. Writes after Kill are silently
// dropped: input racing teardown is expected, not an error.
func (c *Channel) Write(p []byte) {
	c.mu.Lock()
	if c.killed {
		c.mu.Unlock()
		return
	}
	ptmx := c.ptmx
	c.mu.Unlock()

	if _, err := ptmx.Write(p); err != nil {
		procLog.Debug("write_after_close_dropped",
			slog.String("session", c.Key),
			slog.String("error", err.Error()))
	}
}

// Resize changes the PTY size. No-op for non-positive dimensions or after
// Kill.
func (c *Channel) Resize(cols, rows int) {
	if cols <= 0 || rows <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.killed {
		return
	}
	c.cols, c.rows = cols, rows
	if err := pty.Setsize(c.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		procLog.Debug("resize_failed",
			slog.String("session", c.Key),
			slog.String("error", err.Error()))
	}
}

// Size returns the last size applied via Resize.
func (c *Channel) Size() (cols, rows int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cols, c.rows
}

// StartTime returns when the process was spawned. Used by the activity
// classifier's warmup window.
func (c *Channel) StartTime() time.Time {
	return c.started
}

// Pid returns the child process id, or 0 if unavailable.
func (c *Channel) Pid() int {
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Pid
	}
	return 0
}

// Kill terminates the process and releases the PTY. Idempotent; safe to
// call multiple times and concurrently with the read loop. The exit
// callback still fires (with KilledExitCode) so supervisors always see a
// terminal lifecycle event.
func (c *Channel) Kill() {
	c.mu.Lock()
	if c.killed {
		c.mu.Unlock()
		return
	}
	c.killed = true
	c.mu.Unlock()

	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	// Closing the PTY unblocks the read loop, which reaps the process and
	// delivers the exit exactly once.
	_ = c.ptmx.Close()
}

// Wait blocks until the read loop has finished and the exit callback has
// been delivered. Intended for tests and orderly shutdown.
func (c *Channel) Wait() {
	c.wg.Wait()
}
