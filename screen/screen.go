// Package screen captures periodic screenshots and encodes them as JPEG
// frames for a realtime session.
package screen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // Register PNG decoder for ffmpeg output
	"os/exec"
	"runtime"

	"golang.org/x/image/draw"
)

// Encoding defaults.
const (
	DefaultMaxWidth = 1024
	DefaultQuality  = 70
)

// ErrFFmpegNotFound is returned when the ffmpeg binary is not on PATH.
var ErrFFmpegNotFound = errors.New("ffmpeg not found")

// Source captures one frame of the screen.
type Source interface {
	Capture(ctx context.Context) (image.Image, error)
}

// FFmpegSource grabs the desktop with ffmpeg, one process per frame.
type FFmpegSource struct {
	// Display is the capture input. Defaults per platform: ":0.0" on Linux,
	// "Capture screen 0" on macOS, "desktop" on Windows.
	Display string
	// Binary overrides the ffmpeg executable.
	Binary string
}

// Available reports whether the ffmpeg binary can be found.
func (s *FFmpegSource) Available() error {
	if _, err := exec.LookPath(s.binary()); err != nil {
		return fmt.Errorf("%w: %v", ErrFFmpegNotFound, err)
	}
	return nil
}

// Capture implements Source.
func (s *FFmpegSource) Capture(ctx context.Context) (image.Image, error) {
	if err := s.Available(); err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, s.binary(), s.args(runtime.GOOS)...)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to capture screen: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screen capture: %w", err)
	}
	return img, nil
}

func (s *FFmpegSource) binary() string {
	if s.Binary != "" {
		return s.Binary
	}
	return "ffmpeg"
}

func (s *FFmpegSource) args(goos string) []string {
	var args []string
	switch goos {
	case "darwin":
		args = []string{"-f", "avfoundation", "-i", s.display("Capture screen 0")}
	case "windows":
		args = []string{"-f", "gdigrab", "-i", s.display("desktop")}
	default:
		args = []string{"-f", "x11grab", "-i", s.display(":0.0")}
	}
	return append([]string{"-loglevel", "error"}, append(args,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)...)
}

func (s *FFmpegSource) display(def string) string {
	if s.Display != "" {
		return s.Display
	}
	return def
}

// Encode downsizes img to at most maxWidth pixels wide, keeping the aspect
// ratio, and encodes it as JPEG.
func Encode(img image.Image, maxWidth, quality int) ([]byte, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, errors.New("empty image")
	}
	if maxWidth > 0 && w > maxWidth {
		nh := max(h*maxWidth/w, 1)
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, nh))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
