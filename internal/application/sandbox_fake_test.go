package application

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bnema/botsmith/internal/ports"
)

type execSpan struct {
	target string
	start  time.Time
	end    time.Time
}

type fakeSandbox struct {
	mu         sync.Mutex
	files      map[string]string
	dirs       []string
	spans      []execSpan
	writeDelay time.Duration
	writeErr   map[string]error
	spawned    chan *fakeProcess
	blocking   map[string]bool
}

func newFakeSandbox() *fakeSandbox {
	return &fakeSandbox{
		files:    map[string]string{},
		writeErr: map[string]error{},
		blocking: map[string]bool{},
		spawned:  make(chan *fakeProcess, 16),
	}
}

func (s *fakeSandbox) Ready(ctx context.Context) (ports.Sandbox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fakeSandbox) MkdirAll(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs = append(s.dirs, path)
	return nil
}

func (s *fakeSandbox) WriteFile(_ context.Context, path, content string) error {
	start := time.Now()
	time.Sleep(s.writeDelay)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.spans = append(s.spans, execSpan{target: path, start: start, end: time.Now()})
	if err := s.writeErr[path]; err != nil {
		return err
	}
	s.files[path] = content
	return nil
}

func (s *fakeSandbox) ReadFile(_ context.Context, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[path]
	if !ok {
		return "", errors.New("no such file")
	}
	return content, nil
}

func (s *fakeSandbox) Spawn(_ context.Context, name string, args ...string) (ports.Process, error) {
	command := args[len(args)-1]

	s.mu.Lock()
	blocking := s.blocking[command]
	s.spans = append(s.spans, execSpan{target: name + " " + strings.Join(args, " "), start: time.Now(), end: time.Now()})
	s.mu.Unlock()

	proc := newFakeProcess(command, blocking)
	s.spawned <- proc
	return proc, nil
}

func (s *fakeSandbox) Spans() []execSpan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]execSpan(nil), s.spans...)
}

func (s *fakeSandbox) File(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[path]
	return content, ok
}

type fakeProcess struct {
	command string
	reader  io.Reader
	writer  *io.PipeWriter
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	killed  bool
}

func newFakeProcess(command string, blocking bool) *fakeProcess {
	p := &fakeProcess{command: command, done: make(chan struct{})}
	if blocking {
		reader, writer := io.Pipe()
		p.reader = reader
		p.writer = writer
		return p
	}
	p.reader = strings.NewReader("ran " + command + "\n")
	p.once.Do(func() { close(p.done) })
	return p
}

func (p *fakeProcess) Output() io.Reader {
	return p.reader
}

func (p *fakeProcess) Wait() (int, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.killed {
		return -1, errors.New("signal: killed")
	}
	return 0, nil
}

func (p *fakeProcess) Kill() error {
	p.once.Do(func() {
		p.mu.Lock()
		p.killed = true
		p.mu.Unlock()
		if p.writer != nil {
			_ = p.writer.Close()
		}
		close(p.done)
	})
	return nil
}
