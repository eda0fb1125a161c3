package main

import (
	"encoding/json"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/menta2k/crop-sorter/internal/config"
	"github.com/menta2k/crop-sorter/pkg/detection"
	"github.com/menta2k/crop-sorter/pkg/types"
)

func setup(t *testing.T) (cfgPath, in, out string) {
	t.Helper()
	dir := t.TempDir()
	in = filepath.Join(dir, "in")
	out = filepath.Join(dir, "out")
	if err := os.Mkdir(in, 0o755); err != nil {
		t.Fatal(err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.Black)
	if err := imaging.Save(img, filepath.Join(in, "a.png")); err != nil {
		t.Fatal(err)
	}

	manifest := filepath.Join(dir, "detections.json")
	data, _ := json.Marshal(detection.Manifest{Images: map[string][]types.Detection{
		"a.png": {{Box: types.Box{X1: 8, Y1: 8, X2: 40, Y2: 40}, Confidence: 0.96}},
	}})
	if err := os.WriteFile(manifest, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Detector.Manifest = manifest
	cfg.LogLevel = "error"
	cfgPath = filepath.Join(dir, "config.json")
	if err := cfg.SaveToFile(cfgPath); err != nil {
		t.Fatal(err)
	}
	return cfgPath, in, out
}

func TestRun_ExitCodes(t *testing.T) {
	t.Setenv(config.LogLevelEnv, "")

	t.Run("success", func(t *testing.T) {
		cfgPath, in, out := setup(t)
		if code := run([]string{"-config", cfgPath, "-in", in, "-out", out}); code != 0 {
			t.Fatalf("exit code %d, want 0", code)
		}
		if _, err := os.Stat(filepath.Join(out, "0.95-1.00", "a_crop_0_conf0.96.jpg")); err != nil {
			t.Errorf("crop missing: %v", err)
		}
	})

	t.Run("failed image", func(t *testing.T) {
		cfgPath, in, out := setup(t)
		os.WriteFile(filepath.Join(in, "z.jpg"), []byte("broken"), 0o644)
		if code := run([]string{"-config", cfgPath, "-in", in, "-out", out}); code != exitFailed {
			t.Errorf("exit code %d, want %d", code, exitFailed)
		}
	})

	t.Run("fail fast", func(t *testing.T) {
		cfgPath, in, out := setup(t)
		os.WriteFile(filepath.Join(in, "0.jpg"), []byte("broken"), 0o644)
		if code := run([]string{"-config", cfgPath, "-in", in, "-out", out, "-fail-fast"}); code != exitConfig {
			t.Errorf("exit code %d, want %d", code, exitConfig)
		}
	})

	t.Run("missing input", func(t *testing.T) {
		cfgPath, in, out := setup(t)
		if code := run([]string{"-config", cfgPath, "-in", in + "-nope", "-out", out}); code != exitConfig {
			t.Errorf("exit code %d, want %d", code, exitConfig)
		}
	})

	t.Run("bad threshold", func(t *testing.T) {
		cfgPath, in, out := setup(t)
		if code := run([]string{"-config", cfgPath, "-in", in, "-out", out, "-conf", "2"}); code != exitConfig {
			t.Errorf("exit code %d, want %d", code, exitConfig)
		}
	})

	t.Run("version", func(t *testing.T) {
		if code := run([]string{"-version"}); code != 0 {
			t.Errorf("exit code %d, want 0", code)
		}
	})
}

func TestRun_WriteConfig(t *testing.T) {
	cfgPath, in, _ := setup(t)
	dst := filepath.Join(t.TempDir(), "effective.json")

	if code := run([]string{"-config", cfgPath, "-in", in, "-margin", "0.2", "-write-config", dst}); code != 0 {
		t.Fatalf("exit code %d", code)
	}
	cfg, err := config.LoadFromFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.InputDir != in || cfg.MarginFraction != 0.2 {
		t.Errorf("flags not applied: %+v", cfg)
	}
}

func TestRun_LogLevelPrecedence(t *testing.T) {
	t.Setenv(config.LogLevelEnv, "debug")

	t.Run("flag beats environment", func(t *testing.T) {
		cfgPath, _, _ := setup(t)
		dst := filepath.Join(t.TempDir(), "effective.json")
		if code := run([]string{"-config", cfgPath, "-log-level", "warn", "-write-config", dst}); code != 0 {
			t.Fatalf("exit code %d", code)
		}
		cfg, err := config.LoadFromFile(dst)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.LogLevel != "warn" {
			t.Errorf("LogLevel = %q, want warn from flag", cfg.LogLevel)
		}
	})

	t.Run("environment beats file", func(t *testing.T) {
		cfgPath, _, _ := setup(t)
		dst := filepath.Join(t.TempDir(), "effective.json")
		if code := run([]string{"-config", cfgPath, "-write-config", dst}); code != 0 {
			t.Fatalf("exit code %d", code)
		}
		cfg, err := config.LoadFromFile(dst)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug from environment", cfg.LogLevel)
		}
	})
}
