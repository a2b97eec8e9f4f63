package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"scribe/internal/arm"
	"scribe/internal/choreo"
	"scribe/internal/config"
	"scribe/internal/dispatch"
	"scribe/internal/ipc"
	"scribe/internal/nlu"
	"scribe/internal/proxy"
	"scribe/internal/session"
	"scribe/internal/sketch"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	cfgFile := cli.StringP("config", "c", config.DefaultPath, "Config file path")
	url := cli.StringP("url", "u", "", "Url of the arm bridge (overrides config)")
	proxyAddr := cli.StringP("proxy", "p", "", "Socks Proxy Address (overrides config)")
	image := cli.StringP("image", "i", "", "Paint from this image instead of the camera")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	noVoice := cli.Bool("no-voice", false, "Run without microphone and speech")
	noLLM := cli.Bool("no-llm", false, "Classify with keywords only")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevelMap[*logLevel],
		TimeFormat: time.TimeOnly,
	})))

	log.Info("Booting up")

	cfg, err := config.Load(*cfgFile, *envFile)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	if *url != "" {
		cfg.Arm.Url = *url
	}
	if *proxyAddr != "" {
		cfg.LLM.Proxy = *proxyAddr
	}
	if err := cfg.Validate(); err != nil {
		log.Error("Bad config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := arm.Dial(ctx, cfg.ArmClient())
	if err != nil {
		log.Error("Failed to connect arm", "url", cfg.Arm.Url, "err", err)
		os.Exit(1)
	}
	defer client.Close()

	log.Debug("Connected arm", "url", cfg.Arm.Url, "firmware", client.Version().String())

	s := session.New(cfg.Settings())
	s.MinFirmware = cfg.Firmware()

	disp := dispatch.New(choreo.NewPlayer(client), s)
	disp.PaintFile = cfg.Assets.PaintFile
	disp.Writer.Root = cfg.Assets.Root
	disp.Writer.DwellUnit = cfg.Assets.DwellUnit
	if cfg.Assets.Local != "" {
		disp.Writer.Assets = os.DirFS(cfg.Assets.Local)
	}

	var src sketch.Source = sketch.NewCamera(cfg.Camera.Device)
	if *image != "" {
		src = sketch.File{Path: *image}
	}
	sk := sketch.New(src)
	sk.Snapshot = cfg.Camera.Snapshot
	disp.Sketcher = sk

	var v *voice
	if *noVoice {
		disp.Speaker = logSpeaker{}
	} else {
		v, err = newVoice(cfg.Voice)
		if err != nil {
			log.Error("Failed to init voice", "err", err)
			os.Exit(1)
		}
		defer v.Close()
		disp.Speaker = v.tts
		log.Debug("Loaded voice")
	}

	cls := nlu.NewClassifier(nil)
	if !*noLLM {
		llm, err := newLLM(cfg.LLM)
		if err != nil {
			log.Error("Failed to init LLM", "err", err)
			os.Exit(1)
		}
		cls = nlu.NewClassifier(llm)
		cls.Attempts = cfg.LLM.Attempts
		cls.Backoff = cfg.LLM.Backoff
		cls.OnRetry = func(attempt int, err error) {
			if err := disp.Speaker.Speak(ctx, "Sorry, I did not get that. Let me think again."); err != nil {
				log.Warn("Failed to voice out", "err", err)
			}
		}
	}

	if err := disp.Start(ctx); err != nil {
		log.Error("Failed to start arm", "err", err)
		os.Exit(1)
	}

	log.Info("Boot up - successful", "session", s.ID)
	if err := disp.Speaker.Speak(ctx, "Hi, I'm xArm."); err != nil {
		log.Warn("Failed to voice out", "err", err)
	}

	d := &daemon{disp: disp, cls: cls, voice: v}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return disp.Serve(gctx)
	})
	g.Go(func() error {
		return ipc.Serve(gctx, cfg.Socket, d.handle)
	})
	g.Go(func() error {
		select {
		case <-disp.Done():
			log.Info("Quit requested, shutting down")
			return errQuit
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		stop := context.AfterFunc(gctx, func() { client.Close() })
		defer stop()
		return client.Wait()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
		log.Error("Daemon stopped", "err", err)
		os.Exit(1)
	}
	log.Info("Bye")
}

var errQuit = errors.New("quit")

func newLLM(cfg config.LLM) (*nlu.OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY not set")
	}

	httpClient, err := proxy.NewSocksClient(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
	)
	log.Debug("Loaded LLM", "model", cfg.Model, "proxy", cfg.Proxy)
	return nlu.NewOpenAI(client, cfg.Model), nil
}
