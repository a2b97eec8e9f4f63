package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"scribe/internal/choreo"
	"scribe/internal/sketch"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	in := cli.StringP("in", "i", "", "Image to sketch (default: grab a camera frame)")
	camera := cli.String("camera", "/dev/video0", "Camera device")
	out := cli.StringP("out", "o", choreo.PaintFile, "Motion file to write")
	scale := cli.Float64("scale", sketch.DefaultScale, "Downsample factor before edge detection")
	low := cli.Float64("low", sketch.LowThresh, "Canny low threshold")
	high := cli.Float64("high", sketch.HighThresh, "Canny high threshold")
	snapshot := cli.String("snapshot", "", "Save the rotated frame here")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevelMap[*logLevel],
		TimeFormat: time.TimeOnly,
	})))

	var src sketch.Source = sketch.NewCamera(*camera)
	if *in != "" {
		src = sketch.File{Path: *in}
	}

	sk := sketch.New(src)
	sk.Scale = *scale
	sk.Low = *low
	sk.High = *high
	sk.Snapshot = *snapshot

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	prog, err := sk.Sketch(ctx, *out)
	if err != nil {
		log.Error("Failed to sketch", "err", err)
		os.Exit(1)
	}
	log.Info("Done", "out", *out, "lines", len(prog))
}
