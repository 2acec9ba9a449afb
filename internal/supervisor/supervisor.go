// Package supervisor runs agent CLI processes and streams their output as
// keyed events. Every process is identified by its session key; the router
// consumes data and exit events without ever touching process handles.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// ProcSpec describes one agent process run.
type ProcSpec struct {
	// Key is the session key identifying the process. Unique among live
	// processes.
	Key string

	Command string
	Args    []string

	// Stdin is written to the process and then closed. Prompts travel
	// this way so they never hit argv length limits.
	Stdin string

	Env []string
	Dir string
}

// Callbacks receive process events. Both are invoked from reader goroutines;
// implementations must be safe for concurrent use. OnExit fires exactly once
// per spawned process, after the final OnData for that process.
type Callbacks struct {
	OnData func(key, chunk string)
	OnExit func(key string, exitCode int)
}

// Supervisor spawns and kills keyed processes.
type Supervisor interface {
	Spawn(ctx context.Context, spec ProcSpec) error
	Kill(key string) bool
	KillMatching(prefix string) int
	Running() []string
}

// ExecSupervisor runs processes with os/exec.
type ExecSupervisor struct {
	cb  Callbacks
	log *slog.Logger

	mu    sync.Mutex
	procs map[string]*proc
}

type proc struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
}

// NewExecSupervisor creates a supervisor delivering events to cb.
func NewExecSupervisor(cb Callbacks, log *slog.Logger) *ExecSupervisor {
	if log == nil {
		log = slog.Default()
	}
	return &ExecSupervisor{
		cb:    cb,
		log:   log,
		procs: make(map[string]*proc),
	}
}

// Spawn starts a process described by spec. The key must not already be live.
func (s *ExecSupervisor) Spawn(ctx context.Context, spec ProcSpec) error {
	if spec.Key == "" {
		return fmt.Errorf("process key is required")
	}
	if spec.Command == "" {
		return fmt.Errorf("process %s: command is required", spec.Key)
	}

	s.mu.Lock()
	if _, exists := s.procs[spec.Key]; exists {
		s.mu.Unlock()
		return fmt.Errorf("process %s already running", spec.Key)
	}

	cctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cctx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}
	// Own process group so Kill reaches children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("process %s: stdout pipe: %w", spec.Key, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("process %s: stderr pipe: %w", spec.Key, err)
	}

	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("starting %s: %w", spec.Key, err)
	}

	s.procs[spec.Key] = &proc{cmd: cmd, cancel: cancel}
	s.mu.Unlock()

	s.log.Debug("process spawned",
		"key", spec.Key, "command", spec.Command, "pid", cmd.Process.Pid)

	go s.run(spec.Key, cmd, cancel, stdout, stderr)
	return nil
}

func (s *ExecSupervisor) run(key string, cmd *exec.Cmd, cancel context.CancelFunc, stdout, stderr io.Reader) {
	var readers sync.WaitGroup
	for _, r := range []io.Reader{stdout, stderr} {
		readers.Add(1)
		go func(r io.Reader) {
			defer readers.Done()
			s.pump(key, r)
		}(r)
	}

	// Pipes must be drained before Wait.
	readers.Wait()
	err := cmd.Wait()
	cancel()

	exitCode := 0
	if err != nil {
		exitCode = -1
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
	}

	s.mu.Lock()
	delete(s.procs, key)
	s.mu.Unlock()

	s.log.Debug("process exited", "key", key, "exit_code", exitCode)
	if s.cb.OnExit != nil {
		s.cb.OnExit(key, exitCode)
	}
}

func (s *ExecSupervisor) pump(key string, r io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 && s.cb.OnData != nil {
			s.cb.OnData(key, string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// Kill terminates the process for key. Returns false when no such process is
// live. The exit event still fires from the waiter goroutine.
func (s *ExecSupervisor) Kill(key string) bool {
	s.mu.Lock()
	p, ok := s.procs[key]
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.terminate(key, p)
	return true
}

// KillMatching terminates every live process whose key has the given prefix
// and returns how many were signaled.
func (s *ExecSupervisor) KillMatching(prefix string) int {
	s.mu.Lock()
	victims := make(map[string]*proc)
	for key, p := range s.procs {
		if strings.HasPrefix(key, prefix) {
			victims[key] = p
		}
	}
	s.mu.Unlock()

	for key, p := range victims {
		s.terminate(key, p)
	}
	return len(victims)
}

func (s *ExecSupervisor) terminate(key string, p *proc) {
	if p.cmd.Process != nil {
		// Negative pid signals the whole process group.
		if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGTERM); err != nil {
			p.cmd.Process.Kill()
		}
	}
	p.cancel()
	s.log.Debug("process killed", "key", key)
}

// Running returns the keys of live processes.
func (s *ExecSupervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.procs))
	for key := range s.procs {
		keys = append(keys, key)
	}
	return keys
}
