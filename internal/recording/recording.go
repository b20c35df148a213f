// Package recording stores tracker frames as JSON lines and plays them back
// as a sensor.Tracker.
package recording

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/ayusman/poseview/internal/sensor"
)

// ErrNoFrames is returned when a recording holds no frames.
var ErrNoFrames = errors.New("recording has no frames")

const readerSize = 1 << 20

// Writer appends frames to a stream, one JSON line per frame.
type Writer struct {
	w      *bufio.Writer
	c      io.Closer
	frames int
	closed bool
	mu     sync.Mutex
}

// NewWriter returns a Writer on w. If w is an io.Closer it is closed by Close.
func NewWriter(w io.Writer) *Writer {
	wr := &Writer{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		wr.c = c
	}
	return wr
}

// Create creates or truncates the file at path and returns a Writer on it.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not create recording")
	}
	return NewWriter(f), nil
}

// Write appends one frame and flushes it.
func (w *Writer) Write(f *sensor.UserFrame) error {
	line, err := sensor.MarshalFrame(f)
	if err != nil {
		return errors.Wrap(err, "could not encode frame")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.w.Write(line); err != nil {
		return errors.Wrap(err, "could not write frame")
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return errors.Wrap(err, "could not write frame")
	}
	if err := w.w.Flush(); err != nil {
		return errors.Wrap(err, "could not flush frame")
	}
	w.frames++
	return nil
}

// Frames returns the number of frames written.
func (w *Writer) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Close flushes buffered data and closes the underlying stream.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.w.Flush()
	if w.c != nil {
		if cerr := w.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Recorder is a sensor.Tracker that copies every frame it reads to a Writer.
type Recorder struct {
	tracker sensor.Tracker
	w       *Writer
}

// NewRecorder wraps t so that its frames are also written to w.
func NewRecorder(t sensor.Tracker, w *Writer) *Recorder {
	return &Recorder{tracker: t, w: w}
}

// ReadFrame reads from the wrapped tracker and records the frame.
func (r *Recorder) ReadFrame() (*sensor.UserFrame, error) {
	f, err := r.tracker.ReadFrame()
	if err != nil {
		return nil, err
	}
	if err := r.w.Write(f); err != nil {
		return nil, errors.Wrap(err, "could not record frame")
	}
	return f, nil
}

// StartSkeletonTracking forwards to the wrapped tracker.
func (r *Recorder) StartSkeletonTracking(id sensor.UserID) error {
	return r.tracker.StartSkeletonTracking(id)
}

// Close closes the wrapped tracker and the writer.
func (r *Recorder) Close() error {
	err := r.tracker.Close()
	if werr := r.w.Close(); err == nil {
		err = werr
	}
	return err
}

// Player is a sensor.Tracker that replays a recording file.
type Player struct {
	f      *os.File
	r      *bufio.Reader
	loop   bool
	read   int
	line   int
	closed bool
	mu     sync.Mutex
}

// Open opens the recording at path for playback.
func Open(path string) (*Player, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not open recording")
	}
	return &Player{f: f, r: bufio.NewReaderSize(f, readerSize)}, nil
}

// SetLoop makes playback restart at the first frame after the last one.
func (p *Player) SetLoop(loop bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loop = loop
}

// ReadFrame returns the next recorded frame. At the end of the file it
// returns io.EOF, or rewinds when looping.
func (p *Player) ReadFrame() (*sensor.UserFrame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, sensor.ErrTrackerClosed
	}

	for {
		line, n, err := readLine(p.r)
		p.line += n
		if err == io.EOF {
			if p.read == 0 {
				return nil, ErrNoFrames
			}
			if !p.loop {
				return nil, io.EOF
			}
			if err := p.rewind(); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "could not read recording")
		}

		f, err := sensor.UnmarshalFrame(line)
		if err != nil {
			return nil, errors.Wrapf(err, "bad frame at line %d", p.line)
		}
		p.read++
		return f, nil
	}
}

func (p *Player) rewind() error {
	if _, err := p.f.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "could not rewind recording")
	}
	p.r.Reset(p.f)
	p.read = 0
	p.line = 0
	return nil
}

// StartSkeletonTracking is a no-op; recorded skeletons are already tracked.
func (p *Player) StartSkeletonTracking(id sensor.UserID) error {
	return nil
}

// Close closes the recording file.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.f.Close()
}

// Scan calls fn for every frame of the recording at path, in order.
// It stops at the first error returned by fn.
func Scan(path string, fn func(*sensor.UserFrame) error) error {
	p, err := Open(path)
	if err != nil {
		return err
	}
	defer p.Close()

	for {
		f, err := p.ReadFrame()
		if err == io.EOF || err == ErrNoFrames {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
	}
}

// Count returns the number of frames in the recording without decoding them.
func Count(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "could not open recording")
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, readerSize)
	n := 0
	for {
		_, _, err := readLine(r)
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, errors.Wrap(err, "could not read recording")
		}
		n++
	}
}

// readLine returns the next non-blank line without its newline, and the
// number of lines consumed to reach it.
func readLine(r *bufio.Reader) ([]byte, int, error) {
	n := 0
	for {
		raw, err := r.ReadBytes('\n')
		if len(raw) > 0 {
			n++
		}
		if line := bytes.TrimSpace(raw); len(line) > 0 {
			return line, n, nil
		}
		if err != nil {
			return nil, n, err
		}
	}
}
