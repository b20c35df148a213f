// Package capture reads the color stream that accompanies the depth sensor,
// using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

// Capture back ends selectable in Config.API.
const (
	APIAny     = "any"
	APIOpenNI2 = "openni2"
)

// openNIDepthScale maps millimetres onto 8 bits when an OpenNI2 device hands
// back its depth map instead of a color image.
const openNIDepthScale = 255.0 / 10000.0

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")

	// ErrUnknownAPI is returned for an unsupported Config.API value.
	ErrUnknownAPI = errors.New("unknown capture api")
)

// Config selects and configures the color device.
type Config struct {
	Device int    `json:"device"`
	API    string `json:"api"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	FPS    int    `json:"fps"`
}

// DefaultConfig returns the default color stream settings.
func DefaultConfig() Config {
	return Config{
		Device: 0,
		API:    APIAny,
		Width:  DefaultWidth,
		Height: DefaultHeight,
		FPS:    DefaultFPS,
	}
}

// ParseAPI maps a configured back end name to its gocv capture API.
func ParseAPI(name string) (gocv.VideoCaptureAPI, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", APIAny:
		return gocv.VideoCaptureAny, nil
	case APIOpenNI2:
		return gocv.VideoCaptureOpenNI2, nil
	default:
		return gocv.VideoCaptureAny, fmt.Errorf("%w: %q", ErrUnknownAPI, name)
	}
}

// Camera defines the interface for color stream implementations.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// cameraImpl manages video capture from a device using GoCV.
type cameraImpl struct {
	config  Config
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
}

// NewCamera creates a Camera for the given configuration.
// Zero sizes and rates fall back to the defaults.
func NewCamera(config Config) Camera {
	if config.Width <= 0 || config.Height <= 0 {
		config.Width, config.Height = DefaultWidth, DefaultHeight
	}
	if config.FPS <= 0 {
		config.FPS = DefaultFPS
	}
	if config.API == "" {
		config.API = APIAny
	}
	return &cameraImpl{config: config}
}

// Open opens the device and applies the configured resolution and rate.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	api, err := ParseAPI(c.config.API)
	if err != nil {
		return err
	}

	capture, err := gocv.OpenVideoCaptureWithAPI(c.config.Device, api)
	if err != nil {
		return fmt.Errorf("open device %d (%s): %w", c.config.Device, c.config.API, err)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.config.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.config.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.config.FPS))

	c.capture = capture
	c.running = true

	return nil
}

// Close closes the device and releases resources.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single BGR frame.
// The caller is responsible for closing the returned Mat.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, errors.New("failed to read frame from camera")
	}

	if mat.Empty() {
		mat.Close()
		return nil, errors.New("captured frame is empty")
	}

	if mat.Channels() != 1 {
		return &mat, nil
	}

	bgr, err := toBGR(mat)
	mat.Close()
	if err != nil {
		return nil, err
	}
	return &bgr, nil
}

// toBGR expands a single channel frame to BGR. 16-bit depth maps are scaled
// down to 8 bits first.
func toBGR(src gocv.Mat) (gocv.Mat, error) {
	gray := src
	if src.Type() == gocv.MatTypeCV16U {
		gray = gocv.NewMat()
		defer gray.Close()
		src.ConvertToWithParams(&gray, gocv.MatTypeCV8U, openNIDepthScale, 0)
	}

	dst := gocv.NewMat()
	gocv.CvtColor(gray, &dst, gocv.ColorGrayToBGR)
	if dst.Empty() {
		dst.Close()
		return gocv.Mat{}, errors.New("convert frame to bgr: empty result")
	}
	return dst, nil
}

// SetFPS sets the frames per second for capture.
// Values less than or equal to 0 are ignored.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.config.FPS = fps

	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the current frames per second setting.
func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.config.FPS
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
