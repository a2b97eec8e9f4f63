package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"scribe/internal/armsim"
)

func main() {
	addr := cli.StringP("addr", "a", ":8092", "Listen address")
	shard := cli.String("shard", armsim.DefaultShard, "Shard name the bridge answers for")
	failAt := cli.Int("fail-at", 0, "Answer the n-th command with an error code")
	failCode := cli.Int("fail-code", 1, "Error code used by --fail-at")
	debug := cli.BoolP("debug", "d", false, "Log every frame")
	cli.Parse()

	level := log.LevelInfo
	if *debug {
		level = log.LevelDebug
	}
	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})))

	sim := armsim.New()
	sim.Shard = *shard
	sim.FailAt(*failAt, *failCode)

	mux := http.NewServeMux()
	mux.Handle("/ws", sim)
	srv := &http.Server{Addr: *addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	log.Info("Arm simulator listening", "addr", *addr, "shard", sim.Shard)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Simulator stopped", "err", err)
		os.Exit(1)
	}
	log.Info("Commands served", "count", len(sim.Commands()))
}
