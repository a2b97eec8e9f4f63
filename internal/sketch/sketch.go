// Package sketch turns a photo into a pen drawing: edges are traced into
// contours and written as a motion file.
package sketch

import (
	"context"
	"errors"
	"fmt"
	"image"
	log "log/slog"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"

	"scribe/pkg/gcode"
)

var (
	ErrNoFrame = errors.New("no frame captured")
	ErrNoEdges = errors.New("no edges found")
)

const (
	DefaultScale = 0.3
	// BlurSigma matches a 5x5 Gaussian kernel.
	BlurSigma  = 1.1
	LowThresh  = 20
	HighThresh = 40

	LiftZ = 280
	DrawZ = 267.9
	Feed  = 100
)

// DefaultOffset moves image pixels into the paint cell on the board.
var DefaultOffset = image.Point{X: 110, Y: -165}

type Sketcher struct {
	Source Source
	Scale  float64
	Low    float64
	High   float64
	Offset image.Point
	// Snapshot, when set, receives the rotated frame.
	Snapshot string
}

func New(src Source) *Sketcher {
	return &Sketcher{
		Source: src,
		Scale:  DefaultScale,
		Low:    LowThresh,
		High:   HighThresh,
		Offset: DefaultOffset,
	}
}

// Sketch captures one frame, converts it and writes the motion file to out.
func (s *Sketcher) Sketch(ctx context.Context, out string) (gcode.Program, error) {
	frame, err := s.Source.Frame(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}

	prog, err := s.FromImage(frame)
	if err != nil {
		return nil, err
	}
	if err := prog.WriteFile(out); err != nil {
		return nil, err
	}
	log.Info("Wrote sketch", "path", out, "lines", len(prog))
	return prog, nil
}

// FromImage runs the edge pipeline on img.
func (s *Sketcher) FromImage(img image.Image) (gcode.Program, error) {
	rotated := imaging.Rotate90(img)
	if s.Snapshot != "" {
		if err := imaging.Save(rotated, s.Snapshot); err != nil {
			log.Warn("Failed to save snapshot", "path", s.Snapshot, "err", err)
		}
	}

	gray := Prepare(rotated, s.Scale)
	edges := Canny(gray, s.Low, s.High)
	contours := Trace(edges)
	if len(contours) == 0 {
		return nil, ErrNoEdges
	}
	log.Debug("Traced contours", "count", len(contours), "size", gray.Bounds().Size())
	return Encode(contours, s.Offset), nil
}

// Prepare downsamples img by scale, converts it to gray and blurs it.
func Prepare(img image.Image, scale float64) *image.Gray {
	b := img.Bounds()
	w := uint(float64(b.Dx())*scale + 0.5)
	h := uint(float64(b.Dy())*scale + 0.5)
	if w == 0 || h == 0 {
		w, h = 1, 1
	}
	small := resize.Resize(w, h, img, resize.Bilinear)
	blurred := imaging.Blur(imaging.Grayscale(small), BlurSigma)

	bb := blurred.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bb.Dx(), bb.Dy()))
	for y := 0; y < bb.Dy(); y++ {
		for x := 0; x < bb.Dx(); x++ {
			gray.Pix[y*gray.Stride+x] = blurred.Pix[y*blurred.Stride+x*4]
		}
	}
	return gray
}

// Encode lifts the pen before every contour and then visits each point at
// drawing depth, shifted by off.
func Encode(contours [][]image.Point, off image.Point) gcode.Program {
	n := 0
	for _, c := range contours {
		n += len(c) + 1
	}
	prog := make(gcode.Program, 0, n)
	for _, c := range contours {
		prog = append(prog, gcode.Lift(LiftZ))
		for _, p := range c {
			prog = append(prog, gcode.Move(float64(p.X+off.X), float64(p.Y+off.Y), DrawZ, Feed))
		}
	}
	return prog
}
