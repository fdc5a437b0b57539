// Package executor runs shell commands for the assistant. Output streams
// to the terminal while a bounded copy is captured, and the working
// directory a command leaves behind carries over to the next one.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxCapture = 256 * 1024
	drainGrace        = 500 * time.Millisecond
	interruptGrace    = 2 * time.Second
)

type Options struct {
	Dir        string
	Shell      string
	LoginShell bool
	Timeout    time.Duration
	TrackDir   bool
	MaxCapture int
	Env        []string
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
	Logger     *zap.Logger
}

// Result describes one finished command. A non-zero exit is reported here
// rather than as an error.
type Result struct {
	Command     string        `json:"command"`
	Dir         string        `json:"dir"`
	NextDir     string        `json:"next_dir"`
	ExitCode    int           `json:"exit_code"`
	Output      string        `json:"output"`
	Success     bool          `json:"success"`
	Duration    time.Duration `json:"duration"`
	Truncated   bool          `json:"truncated,omitempty"`
	TimedOut    bool          `json:"timed_out,omitempty"`
	Canceled    bool          `json:"canceled,omitempty"`
	Interactive bool          `json:"interactive,omitempty"`
}

type Executor struct {
	mu     sync.Mutex
	dir    string
	shell  string
	opts   Options
	logger *zap.Logger
}

func New(opts Options) (*Executor, error) {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not determine working directory: %w", err)
		}
		dir = wd
	}
	if opts.MaxCapture <= 0 {
		opts.MaxCapture = defaultMaxCapture
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{shell: resolveShell(opts.Shell), opts: opts, logger: logger}
	if err := e.SetDir(dir); err != nil {
		return nil, err
	}
	return e, nil
}

// Dir is the directory the next command starts in.
func (e *Executor) Dir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dir
}

func (e *Executor) SetDir(dir string) error {
	dir = expandHome(strings.TrimSpace(dir))
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(e.Dir(), dir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("working directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("working directory %s is not a directory", dir)
	}
	e.mu.Lock()
	e.dir = filepath.Clean(dir)
	e.mu.Unlock()
	return nil
}

func (e *Executor) Shell() string { return e.shell }

// Run executes command and waits for it.
func (e *Executor) Run(ctx context.Context, command string) (Result, error) {
	proc, err := e.Start(ctx, command)
	if err != nil {
		return Result{}, err
	}
	return proc.Wait()
}

// Process is a started command.
type Process struct {
	done   chan struct{}
	result Result
	err    error
}

// Wait blocks until the command finishes. It may be called more than once.
func (p *Process) Wait() (Result, error) {
	<-p.done
	return p.result, p.err
}

// Done is closed when the command has finished.
func (p *Process) Done() <-chan struct{} { return p.done }

// Start launches command in the current directory and returns without
// waiting. Errors here mean the command could not be started at all.
func (e *Executor) Start(ctx context.Context, command string) (*Process, error) {
	command, err := NormalizeCommand(command)
	if err != nil {
		return nil, err
	}

	var cancel context.CancelFunc = func() {}
	if e.opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
	}

	startDir := e.Dir()
	interactive := isInteractive(command)
	track := e.opts.TrackDir && runtime.GOOS != "windows" && posixShell(e.shell)

	script := command
	if track {
		script = fmt.Sprintf(trackWrapper, command)
	}
	name, args := shellCommandInvocation(e.shell, script, e.opts.LoginShell)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = startDir
	if len(e.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), e.opts.Env...)
	}
	cmd.Stdin = e.opts.Stdin
	restore := setGroup(cmd, e.opts.Stdin)
	var hardStop *time.Timer
	cmd.Cancel = func() error {
		pid := cmd.Process.Pid
		hardStop = time.AfterFunc(interruptGrace, func() { killGroup(pid) })
		return interruptGroup(cmd.Process)
	}
	cmd.WaitDelay = interruptGrace

	run := &running{
		exec:        e,
		cmd:         cmd,
		command:     command,
		startDir:    startDir,
		interactive: interactive,
		capture:     newCaptureBuffer(e.opts.MaxCapture),
	}
	if err := run.wire(track); err != nil {
		cancel()
		return nil, err
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		run.closeAll()
		restore()
		cancel()
		return nil, fmt.Errorf("could not start %s: %w", name, err)
	}
	run.closeChildEnds()
	e.logger.Debug("command started",
		zap.String("dir", startDir), zap.String("shell", name), zap.Bool("interactive", interactive))

	proc := &Process{done: make(chan struct{})}
	go func() {
		defer close(proc.done)
		defer cancel()
		defer restore()
		proc.result, proc.err = run.finish(ctx, started)
		if ctx.Err() != nil {
			// the shell is gone; nothing it started may outlive it
			if hardStop != nil {
				hardStop.Stop()
			}
			killGroup(cmd.Process.Pid)
		}
	}()
	return proc, nil
}

type running struct {
	exec        *Executor
	cmd         *exec.Cmd
	command     string
	startDir    string
	interactive bool
	capture     *captureBuffer

	readers  []*os.File
	writers  []*os.File
	outR     *os.File
	errR     *os.File
	dirR     *os.File
	dirBytes bytes.Buffer
}

// wire connects the child's output. Interactive programs get the terminal
// directly; everything else writes into pipes this process drains.
func (r *running) wire(track bool) error {
	opts := r.exec.opts
	if r.interactive {
		r.cmd.Stdout = opts.Stdout
		r.cmd.Stderr = opts.Stderr
	} else {
		var err error
		if r.outR, r.cmd.Stdout, err = r.pipe(); err != nil {
			return err
		}
		if r.errR, r.cmd.Stderr, err = r.pipe(); err != nil {
			return err
		}
	}
	if track {
		dirR, dirW, err := r.pipe()
		if err != nil {
			return err
		}
		r.dirR = dirR
		r.cmd.ExtraFiles = []*os.File{dirW}
	}
	return nil
}

func (r *running) pipe() (*os.File, *os.File, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		r.closeAll()
		return nil, nil, fmt.Errorf("could not create pipe: %w", err)
	}
	r.readers = append(r.readers, pr)
	r.writers = append(r.writers, pw)
	return pr, pw, nil
}

func (r *running) closeChildEnds() {
	for _, w := range r.writers {
		_ = w.Close()
	}
	r.writers = nil
}

func (r *running) closeAll() {
	r.closeChildEnds()
	for _, pr := range r.readers {
		_ = pr.Close()
	}
	r.readers = nil
}

func (r *running) finish(ctx context.Context, started time.Time) (Result, error) {
	opts := r.exec.opts
	var g errgroup.Group
	if r.outR != nil {
		g.Go(func() error { return pump(r.outR, opts.Stdout, r.capture) })
		g.Go(func() error { return pump(r.errR, opts.Stderr, r.capture) })
	}
	if r.dirR != nil {
		g.Go(func() error {
			_, err := io.Copy(&r.dirBytes, io.LimitReader(r.dirR, 4096))
			return ignoreClosed(err)
		})
	}

	waitErr := r.cmd.Wait()

	// A background child can keep the pipes open; stop draining after a
	// short grace period instead of hanging on it.
	drained := make(chan error, 1)
	go func() { drained <- g.Wait() }()
	var pumpErr error
	select {
	case pumpErr = <-drained:
	case <-time.After(drainGrace):
		r.closeAll()
		pumpErr = <-drained
	}
	r.closeAll()

	res := Result{
		Command:     r.command,
		Dir:         r.startDir,
		NextDir:     r.startDir,
		Output:      r.capture.String(),
		Truncated:   r.capture.Truncated(),
		Duration:    time.Since(started),
		Interactive: r.interactive,
	}
	if pumpErr != nil {
		r.exec.logger.Debug("output pump failed", zap.Error(pumpErr))
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		res.ExitCode = 0
	case errors.As(waitErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode < 0 {
			res.ExitCode = -1
		}
	case errors.Is(waitErr, exec.ErrWaitDelay):
		res.ExitCode = r.cmd.ProcessState.ExitCode()
	default:
		return res, fmt.Errorf("command did not finish: %w", waitErr)
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
	case errors.Is(ctx.Err(), context.Canceled):
		res.Canceled = true
	}
	if !res.TimedOut && !res.Canceled && interrupted(r.cmd.ProcessState) {
		res.Canceled = true
	}
	res.Success = res.ExitCode == 0 && !res.TimedOut && !res.Canceled

	r.exec.updateDir(&res, r.dirBytes.String())
	r.exec.logger.Info("command finished",
		zap.Int("exit_code", res.ExitCode),
		zap.Bool("success", res.Success),
		zap.Duration("duration", res.Duration),
		zap.String("next_dir", res.NextDir))
	return res, nil
}

// updateDir applies the directory reported by the wrapper, or falls back
// to recognising a plain cd. Anything unusable keeps the old directory.
func (e *Executor) updateDir(res *Result, reported string) {
	if !e.opts.TrackDir {
		return
	}
	next := strings.TrimSpace(reported)
	if next == "" && res.Success {
		if target, ok := plainCD(res.Command); ok {
			next = target
		}
	}
	if next == "" {
		return
	}
	if err := e.SetDir(next); err != nil {
		e.logger.Debug("ignoring reported directory", zap.String("dir", next), zap.Error(err))
		return
	}
	res.NextDir = e.Dir()
}

func pump(src io.Reader, terminal io.Writer, capture *captureBuffer) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if terminal != nil {
				_, _ = terminal.Write(chunk)
			}
			capture.Write(chunk)
		}
		if err != nil {
			return ignoreClosed(err)
		}
	}
}

func ignoreClosed(err error) error {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// captureBuffer keeps the first max bytes written to it.
type captureBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int
	truncated bool
}

func newCaptureBuffer(max int) *captureBuffer {
	return &captureBuffer{max: max}
}

func (c *captureBuffer) Write(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.max - c.buf.Len()
	if room <= 0 {
		c.truncated = c.truncated || len(p) > 0
		return
	}
	if len(p) > room {
		p = p[:room]
		c.truncated = true
	}
	c.buf.Write(p)
}

func (c *captureBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func (c *captureBuffer) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated
}
