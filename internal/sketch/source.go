package sketch

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strings"

	"github.com/disintegration/imaging"
)

type Source interface {
	Frame(ctx context.Context) (image.Image, error)
}

// Camera grabs a single frame from a V4L2 device through ffmpeg.
type Camera struct {
	Device string
	FFmpeg string
}

func NewCamera(device string) *Camera {
	return &Camera{Device: device, FFmpeg: "ffmpeg"}
}

func (c *Camera) Frame(ctx context.Context) (image.Image, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.FFmpeg,
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2", "-i", c.Device,
		"-frames:v", "1",
		"-f", "image2pipe", "-vcodec", "png", "-",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("open camera %s: %w: %s", c.Device, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, ErrNoFrame
	}
	img, err := imaging.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// File serves the same image on every call.
type File struct {
	Path string
}

func (f File) Frame(ctx context.Context) (image.Image, error) {
	img, err := imaging.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}
	return img, nil
}
