package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/matfwd/internal/tensor"
	"github.com/samcharles93/matfwd/internal/vectors"
)

// runApp executes the CLI in-process. Tests touching the package-level flag
// variables must not run in parallel.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	if os.Getenv(configEnv) == "" {
		t.Setenv(configEnv, filepath.Join(t.TempDir(), "absent.yaml"))
	}
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(context.Context, *cli.Command, error) {}
	err := app.Run(context.Background(), append([]string{"matfwd"}, args...))
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil || cfg.Backend != "" {
		t.Fatalf("missing file: cfg=%+v err=%v", cfg, err)
	}

	path := writeConfig(t, "backend: host\nlocal_size: 32\ntolerance: 0.001\nserver_address: 0.0.0.0:9000\n")
	cfg, err = LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend != "host" || cfg.LocalSize == nil || *cfg.LocalSize != 32 {
		t.Fatalf("cfg %+v", cfg)
	}
	if cfg.Tolerance == nil || *cfg.Tolerance != 0.001 || cfg.ServerAddress != "0.0.0.0:9000" {
		t.Fatalf("cfg %+v", cfg)
	}

	if _, err := LoadConfig(writeConfig(t, "backend: [unterminated\n")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestConfigPathPrecedence(t *testing.T) {
	t.Setenv(configEnv, "/tmp/from-env.yaml")
	configFile = ""
	if got := configPath(); got != "/tmp/from-env.yaml" {
		t.Fatalf("env path: %q", got)
	}
	configFile = "/tmp/from-flag.yaml"
	t.Cleanup(func() { configFile = "" })
	if got := configPath(); got != "/tmp/from-flag.yaml" {
		t.Fatalf("flag path: %q", got)
	}
}

func TestConfigAppliesUnlessFlagSet(t *testing.T) {
	path := writeConfig(t, "backend: host\nlocal_size: 16\nlog_format: json\n")

	if _, err := runApp(t, "--config", path, "backends"); err != nil {
		t.Fatal(err)
	}
	if backendName != "host" || localSize != 16 || logFormat != "json" {
		t.Fatalf("config not applied: backend=%q local=%d format=%q", backendName, localSize, logFormat)
	}

	out, err := runApp(t, "--config", path, "backends", "--backend", "emu", "--local-size", "8")
	if err != nil {
		t.Fatal(err)
	}
	if backendName != "emu" || localSize != 8 {
		t.Fatalf("flags did not win: backend=%q local=%d", backendName, localSize)
	}
	if !strings.Contains(out, "selected: emu") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestBadConfigFails(t *testing.T) {
	path := writeConfig(t, "tolerance: [\n")
	if _, err := runApp(t, "--config", path, "version"); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestGenThenVerify(t *testing.T) {
	suite := filepath.Join(t.TempDir(), "suite.yaml")
	out, err := runApp(t, "gen", "--out", suite, "--shape", "1x1x2x2,2x3x5x4", "--shape", "2x4x16x8")
	if err != nil {
		t.Fatalf("gen: %v", err)
	}
	if !strings.Contains(out, "wrote 3 cases") {
		t.Fatalf("gen output:\n%s", out)
	}
	s, err := vectors.Load(suite)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Cases) != 3 || s.Cases[2].Shape != (tensor.Shape{B: 2, T: 4, C: 16, OC: 8}) {
		t.Fatalf("suite cases %+v", len(s.Cases))
	}

	out, err = runApp(t, "--backend", "emu", "verify", "--suite", suite)
	if err != nil {
		t.Fatalf("verify: %v\n%s", err, out)
	}
	if strings.Contains(out, "FAIL") || strings.Count(out, "PASS") != 9 {
		t.Fatalf("verify output:\n%s", out)
	}
}

func TestVerifyDetectsCorruptSuite(t *testing.T) {
	c, err := vectors.Generate("bad", tensor.Shape{B: 1, T: 1, C: 4, OC: 3}, 5)
	if err != nil {
		t.Fatal(err)
	}
	c.Expected[1] += 1
	c.ExpectedNoBias[1] += 1
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := vectors.Save(path, &vectors.Suite{Cases: []vectors.Case{c}}); err != nil {
		t.Fatal(err)
	}
	out, err := runApp(t, "--backend", "emu", "verify", "--suite", path)
	if err == nil {
		t.Fatalf("expected failure, output:\n%s", out)
	}
	if !strings.Contains(out, "FAIL") || !strings.Contains(out, "out[1]") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestVerifyHostBackendSkipsDevice(t *testing.T) {
	out, err := runApp(t, "--backend", "host", "verify")
	if err != nil {
		t.Fatalf("verify: %v\n%s", err, out)
	}
	if !strings.Contains(out, "skip") || strings.Contains(out, "FAIL") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestRunCommand(t *testing.T) {
	out, err := runApp(t, "--backend", "emu", "run", "-B", "2", "-T", "3", "-C", "8", "-OC", "5", "--show", "2")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	for _, want := range []string{"backend:   emu", "mode:      device", "shape:     B=2 T=3 C=8 OC=5", "out[:2]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}

	out, err = runApp(t, "--backend", "host", "run", "-B", "1", "-T", "1", "-C", "2", "-OC", "2", "--no-bias")
	if err != nil {
		t.Fatalf("run host: %v", err)
	}
	if !strings.Contains(out, "mode:      host") || !strings.Contains(out, "max |Δ| vs host: 0") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestRunRejectsBadShape(t *testing.T) {
	if _, err := runApp(t, "--backend", "host", "run", "-B", "0"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunRejectsUnknownMode(t *testing.T) {
	for _, args := range [][]string{
		{"--backend", "emu", "run", "--mode", "gpu"},
		{"--backend", "emu", "run", "--mode", "gpu", "--fatal"},
	} {
		if _, err := runApp(t, args...); err == nil {
			t.Fatalf("%v: expected error", args)
		}
	}
}

func TestRunRejectsOverflowingShape(t *testing.T) {
	if _, err := runApp(t, "--backend", "host", "run", "-B", "65536", "-T", "65536", "-C", "65536", "-OC", "65536"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseShapes(t *testing.T) {
	got, err := parseShapes([]string{"1x2x3x4, 5x6x7x8", "2x2x2x2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[1] != (tensor.Shape{B: 5, T: 6, C: 7, OC: 8}) {
		t.Fatalf("got %+v", got)
	}
	if m := maxShape(got); m != (tensor.Shape{B: 5, T: 6, C: 7, OC: 8}) {
		t.Fatalf("max %+v", m)
	}
	for _, bad := range []string{"1x2x3", "1x2x3xq", "0x1x1x1"} {
		if _, err := parseShape(bad); err == nil {
			t.Fatalf("parseShape(%q) succeeded", bad)
		}
	}
}

func TestCPUFeaturesDoNotPanic(t *testing.T) {
	var buf bytes.Buffer
	printSystem(&buf)
	if !strings.Contains(buf.String(), "cpu flags:") {
		t.Fatalf("output:\n%s", buf.String())
	}
}
