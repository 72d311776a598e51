// Package record drives the external recorder subprocess. It consumes raw
// RTP over plain transports and writes a container file; this side only
// allocates ports, renders the session descriptor and babysits the process.
package record

import (
	"bufio"
	"io"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/openmeet/openmeet/internal/config"
)

// Service is shared by all rooms: one port range, one recorder binary.
type Service struct {
	cfg   config.Rec
	ports *allocator
}

func NewService(cfg config.Rec) *Service {
	return &Service{cfg: cfg, ports: newAllocator(cfg.MinPort, cfg.MaxPort)}
}

func (s *Service) AllocPort() (int, error) { return s.ports.Get() }
func (s *Service) ReleasePort(port int)    { s.ports.Release(port) }

// Process is one running recorder subprocess.
type Process struct {
	cmd *exec.Cmd

	mu     sync.Mutex
	exited bool
	onExit func(error)
}

// Spawn starts the recorder and pipes the session descriptor into it. The
// returned Process is confirmed started; exit is reported asynchronously.
func (s *Service) Spawn(fileName, descriptor string) (*Process, error) {
	out := filepath.Join(s.cfg.OutDir, fileName+".webm")
	args := []string{
		"-loglevel", "warning",
		"-protocol_whitelist", "pipe,udp,rtp",
		"-fflags", "+genpts",
		"-f", "sdp",
		"-i", "pipe:0",
		"-map", "0:v:0", "-c:v", "copy",
		"-map", "0:a:0", "-strict", "-2", "-c:a", "copy",
		"-flags", "+global_header",
		out,
	}
	cmd := exec.Command(s.cfg.Binary, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "record").Int("pid", cmd.Process.Pid).Str("out", out).Msg("recorder started")

	go drainStderr(stderr)
	go func() {
		_, werr := io.WriteString(stdin, descriptor)
		if werr != nil {
			log.Error().Err(werr).Str("module", "record").Msg("write descriptor")
		}
		_ = stdin.Close()
	}()

	p := &Process{cmd: cmd}
	go func() {
		waitErr := cmd.Wait()
		p.mu.Lock()
		p.exited = true
		cb := p.onExit
		p.mu.Unlock()
		if cb != nil {
			cb(waitErr)
		}
	}()
	return p, nil
}

// OnExit registers the exit callback. Registering after exit is a no-op;
// the caller initiated the kill in that case and does not need the report.
func (p *Process) OnExit(fn func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.exited {
		p.onExit = fn
	}
}

// Kill stops the recorder with SIGINT so it can finalize the container file.
func (p *Process) Kill() {
	p.mu.Lock()
	p.onExit = nil
	exited := p.exited
	p.mu.Unlock()
	if exited {
		return
	}
	log.Info().Str("module", "record").Int("pid", p.cmd.Process.Pid).Msg("stopping recorder")
	if err := p.cmd.Process.Signal(syscall.SIGINT); err != nil {
		_ = p.cmd.Process.Kill()
	}
}

func drainStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		log.Debug().Str("module", "record").Msg(sc.Text())
	}
}
