// Package config loads daemon settings from built-in defaults, an optional
// YAML file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"scribe/internal/arm"
	"scribe/internal/session"
)

const DefaultPath = "scribe.yaml"

type Arm struct {
	Url         string `yaml:"url"`
	Shard       string `yaml:"shard"`
	Bridge      string `yaml:"bridge"`
	Reconn      uint   `yaml:"reconn"`
	MinFirmware string `yaml:"min_firmware"`
}

type Motion struct {
	Speed      float64 `yaml:"speed"`
	Acc        float64 `yaml:"acc"`
	AngleSpeed float64 `yaml:"angle_speed"`
	AngleAcc   float64 `yaml:"angle_acc"`
}

type Assets struct {
	// Root is where the bridge finds the per-character motion files.
	Root string `yaml:"root"`
	// Local, when set, is the same tree as seen from this host and lets the
	// writer skip missing characters up front.
	Local     string        `yaml:"local"`
	PaintFile string        `yaml:"paint_file"`
	DwellUnit time.Duration `yaml:"dwell_unit"`
}

type Camera struct {
	Device   string `yaml:"device"`
	Snapshot string `yaml:"snapshot"`
}

type LLM struct {
	APIKey   string        `yaml:"-"`
	Model    string        `yaml:"model"`
	Proxy    string        `yaml:"proxy"`
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
}

type Voice struct {
	WhisperModel string `yaml:"whisper_model"`
	Language     string `yaml:"language"`
	Chime        string `yaml:"chime"`
	Speaker      string `yaml:"speaker"`
}

type Config struct {
	Arm    Arm    `yaml:"arm"`
	Motion Motion `yaml:"motion"`
	Assets Assets `yaml:"assets"`
	Camera Camera `yaml:"camera"`
	LLM    LLM    `yaml:"llm"`
	Voice  Voice  `yaml:"voice"`
	Socket string `yaml:"socket"`
}

func Default() *Config {
	m := session.DefaultSettings()
	return &Config{
		Arm: Arm{
			Url:         "ws://localhost:8092/ws",
			Shard:       arm.DefaultShard,
			Bridge:      arm.DefaultBridge,
			Reconn:      3,
			MinFirmware: "1.1.1",
		},
		Motion: Motion{Speed: m.Speed, Acc: m.Acc, AngleSpeed: m.AngleSpeed, AngleAcc: m.AngleAcc},
		Assets: Assets{
			Root:      "assets/gcode",
			PaintFile: "assets/gcode/others/output.nc",
			DwellUnit: time.Second,
		},
		Camera: Camera{Device: "/dev/video0", Snapshot: "Drawing_Image.jpg"},
		LLM: LLM{
			Model:    "gpt-4o-mini",
			Attempts: 3,
			Backoff:  2 * time.Second,
		},
		Voice: Voice{
			WhisperModel: "third_party/whisper.cpp/models/ggml-base.en.bin",
			Language:     "en",
			Chime:        "assets/sounds/chime.mp3",
			Speaker:      "en",
		},
		Socket: "/tmp/scribe.sock",
	}
}

// Load reads path over the defaults, then the env file, then the process
// environment. A missing YAML or env file is not an error.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if envFile != "" {
		_ = godotenv.Load(envFile)
	}
	cfg.LLM.APIKey = getEnv("OPENAI_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Proxy = getEnv("SCRIBE_PROXY", cfg.LLM.Proxy)
	cfg.LLM.Model = getEnv("SCRIBE_MODEL", cfg.LLM.Model)
	cfg.Arm.Url = getEnv("SCRIBE_ARM_URL", cfg.Arm.Url)
	cfg.Arm.Reconn = uint(getEnvInt("SCRIBE_ARM_RECONN", int(cfg.Arm.Reconn)))
	cfg.Voice.WhisperModel = getEnv("SCRIBE_WHISPER_MODEL", cfg.Voice.WhisperModel)
	cfg.Camera.Device = getEnv("SCRIBE_CAMERA", cfg.Camera.Device)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Arm.Url)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("arm.url: want ws:// or wss:// address, got %q", c.Arm.Url)
	}
	if _, err := arm.ParseVersion(c.Arm.MinFirmware); err != nil {
		return fmt.Errorf("arm.min_firmware: %w", err)
	}
	if c.Motion.Speed <= 0 || c.Motion.Acc <= 0 || c.Motion.AngleSpeed <= 0 || c.Motion.AngleAcc <= 0 {
		return fmt.Errorf("motion: speeds and accelerations must be positive")
	}
	if c.Assets.Root == "" {
		return fmt.Errorf("assets.root: empty")
	}
	if c.Assets.PaintFile == "" {
		return fmt.Errorf("assets.paint_file: empty")
	}
	if c.Assets.DwellUnit < 0 {
		return fmt.Errorf("assets.dwell_unit: negative")
	}
	if c.LLM.Attempts < 1 {
		return fmt.Errorf("llm.attempts: want at least 1, got %d", c.LLM.Attempts)
	}
	if c.Socket == "" {
		return fmt.Errorf("socket: empty")
	}
	return nil
}

func (c *Config) Settings() session.Settings {
	return session.Settings{
		Speed:      c.Motion.Speed,
		Acc:        c.Motion.Acc,
		AngleSpeed: c.Motion.AngleSpeed,
		AngleAcc:   c.Motion.AngleAcc,
	}
}

func (c *Config) ArmClient() arm.ClientConfig {
	return arm.ClientConfig{
		Url:    c.Arm.Url,
		Shard:  c.Arm.Shard,
		Bridge: c.Arm.Bridge,
		Reconn: c.Arm.Reconn,
	}
}

// Firmware is the minimum version validated by Load.
func (c *Config) Firmware() arm.Version {
	v, _ := arm.ParseVersion(c.Arm.MinFirmware)
	return v
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
