package sensor

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

// BridgeTracker implements Tracker by talking to an SDK bridge subprocess.
// Frames arrive on the bridge's stdout as JSON lines; commands are written to
// its stdin as JSON lines. Close may be called while a read is blocked; it
// kills the bridge and the read returns ErrTrackerClosed.
type BridgeTracker struct {
	config Config

	// readMu serializes frame reads. It is never held by Close.
	readMu sync.Mutex

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	pipe    io.ReadCloser
	stdout  *bufio.Reader
	started bool
	closed  bool
}

type bridgeCommand struct {
	Cmd  string `json:"cmd"`
	User uint16 `json:"user,omitempty"`
}

// NewBridgeTracker creates a new bridge tracker.
// The bridge process is started lazily on first read.
func NewBridgeTracker(config Config) (*BridgeTracker, error) {
	if len(config.Command) == 0 {
		return nil, errors.New("bridge command not configured")
	}
	if _, err := exec.LookPath(config.Command[0]); err != nil {
		return nil, fmt.Errorf("bridge executable: %w", err)
	}

	return &BridgeTracker{config: config}, nil
}

// ReadFrame reads the next frame line from the bridge.
func (b *BridgeTracker) ReadFrame() (*UserFrame, error) {
	b.readMu.Lock()
	defer b.readMu.Unlock()

	r, err := b.reader()
	if err != nil {
		return nil, err
	}

	line, err := r.ReadBytes('\n')
	if err != nil {
		if b.isClosed() {
			return nil, ErrTrackerClosed
		}
		if errors.Is(err, io.EOF) && len(line) == 0 {
			return nil, io.EOF
		}
		if !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read frame: %w", err)
		}
	}

	return UnmarshalFrame(line)
}

// StartSkeletonTracking asks the bridge to track the given user's skeleton.
func (b *BridgeTracker) StartSkeletonTracking(id UserID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureStarted(); err != nil {
		return err
	}
	return b.send(bridgeCommand{Cmd: "track", User: uint16(id)})
}

// Close shuts down the bridge process. It does not wait for a pending
// ReadFrame to return.
func (b *BridgeTracker) Close() error {
	b.mu.Lock()
	b.closed = true
	cmd, stdin, pipe := b.cmd, b.stdin, b.pipe
	started := b.started
	b.started = false
	b.cmd, b.stdin, b.pipe = nil, nil, nil
	b.mu.Unlock()

	if !started {
		return nil
	}
	return shutdown(cmd, stdin, pipe)
}

func (b *BridgeTracker) reader() (*bufio.Reader, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureStarted(); err != nil {
		return nil, err
	}
	return b.stdout, nil
}

func (b *BridgeTracker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *BridgeTracker) send(c bridgeCommand) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	data = append(data, '\n')
	if _, err := b.stdin.Write(data); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

func (b *BridgeTracker) ensureStarted() error {
	if b.closed {
		return ErrTrackerClosed
	}
	if b.started {
		return nil
	}

	args := append([]string{}, b.config.Command[1:]...)
	if b.config.Width > 0 && b.config.Height > 0 {
		args = append(args,
			"--width", strconv.Itoa(b.config.Width),
			"--height", strconv.Itoa(b.config.Height))
	}
	if b.config.FPS > 0 {
		args = append(args, "--fps", strconv.Itoa(b.config.FPS))
	}

	b.cmd = exec.Command(b.config.Command[0], args...)

	stdin, err := b.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := b.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// SDK diagnostics go straight to our stderr
	b.cmd.Stderr = os.Stderr

	if err := b.cmd.Start(); err != nil {
		return fmt.Errorf("start bridge: %w", err)
	}

	b.stdin = stdin
	b.pipe = stdout
	b.stdout = bufio.NewReaderSize(stdout, 1<<20)
	b.started = true

	return nil
}

func shutdown(cmd *exec.Cmd, stdin io.WriteCloser, pipe io.ReadCloser) error {
	stdin.Close()

	// The bridge streams frames until it is killed.
	var err error
	if cmd.Process != nil {
		err = cmd.Process.Kill()
		if errors.Is(err, os.ErrProcessDone) {
			err = nil
		}
	}

	// Unblocks a pending read even when a child of the bridge still holds
	// the write end of its stdout.
	pipe.Close()
	cmd.Wait()

	return err
}
