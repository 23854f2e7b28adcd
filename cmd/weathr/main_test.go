package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Veirt/weathr/internal/cache"
	"github.com/Veirt/weathr/internal/config"
	"github.com/Veirt/weathr/internal/lifecycle"
	"github.com/Veirt/weathr/internal/models"
	"github.com/Veirt/weathr/internal/refresh"
	"github.com/Veirt/weathr/internal/session"
)

type fakeRefresher struct {
	mu     sync.Mutex
	queue  []refresh.Result
	manual int
}

func (f *fakeRefresher) Poll() (refresh.Result, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return refresh.Result{}, false
	}
	r := f.queue[0]
	f.queue = f.queue[1:]
	return r, true
}

func (f *fakeRefresher) ManualRefresh() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manual++
	return true
}

func (f *fakeRefresher) Refreshing() bool { return false }

func (f *fakeRefresher) manualCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.manual
}

func newTestSession(f *fakeRefresher) *session.Session {
	return session.New(f, session.Options{Location: "Berlin", Units: models.UnitsMetric})
}

func runLoop(t *testing.T, ctx context.Context, l *hudLoop) {
	t.Helper()
	t.Cleanup(lifecycle.Reset)
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	if l.frame == 0 {
		l.frame = 5 * time.Millisecond
	}
	done := make(chan struct{})
	go func() {
		l.run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("hud loop did not return")
	}
}

func outputLines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimSpace(buf.String()), "\n")
}

func TestHUDLoop_PrintsOnlyChangedLines(t *testing.T) {
	f := &fakeRefresher{queue: []refresh.Result{
		{Data: models.WeatherData{Condition: models.ConditionClear, Temperature: 18, IsDay: true}},
	}}
	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	runLoop(t, ctx, &hudLoop{sess: newTestSession(f), out: &out})

	lines := outputLines(&out)
	require.Len(t, lines, 2)
	assert.Equal(t, "Berlin | Loading weather...", lines[0])
	assert.Contains(t, lines[1], "18.0°C")
	assert.Contains(t, lines[1], "day")
}

func TestHUDLoop_MarksRunningAfterFirstReading(t *testing.T) {
	lifecycle.Reset()
	f := &fakeRefresher{queue: []refresh.Result{
		{Data: models.WeatherData{Condition: models.ConditionRain, Temperature: 9}},
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	runLoop(t, ctx, &hudLoop{sess: newTestSession(f), out: &bytes.Buffer{}})

	assert.Equal(t, lifecycle.Running, lifecycle.CurrentPhase())
}

func TestHUDLoop_Commands(t *testing.T) {
	f := &fakeRefresher{}
	commands := make(chan string, 3)
	commands <- "r"
	commands <- "  R "
	commands <- "q"

	runLoop(t, context.Background(), &hudLoop{sess: newTestSession(f), out: &bytes.Buffer{}, commands: commands})

	assert.Equal(t, 2, f.manualCount())
}

func TestHUDLoop_IgnoresUnknownCommandsAndClosedInput(t *testing.T) {
	f := &fakeRefresher{}
	commands := make(chan string, 2)
	commands <- "x"
	close(commands)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	runLoop(t, ctx, &hudLoop{sess: newTestSession(f), out: &bytes.Buffer{}, commands: commands})

	assert.Zero(t, f.manualCount())
}

func TestHUDLoop_RefreshSignal(t *testing.T) {
	f := &fakeRefresher{}
	signals := make(chan os.Signal, 1)
	signals <- os.Interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for f.manualCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	runLoop(t, ctx, &hudLoop{sess: newTestSession(f), out: &bytes.Buffer{}, refresh: signals})

	assert.Equal(t, 1, f.manualCount())
}

func TestHUDLoop_SimulatedSessionIgnoresRefresh(t *testing.T) {
	sess := session.NewSimulated(models.ConditionSnow, true, session.Options{Location: "Oslo", Units: models.UnitsMetric})
	commands := make(chan string, 2)
	commands <- "r"
	commands <- "q"
	var out bytes.Buffer

	runLoop(t, context.Background(), &hudLoop{sess: sess, out: &out, commands: commands})

	lines := outputLines(&out)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "Oslo")
	assert.Contains(t, lines[0], "[simulated]")
	assert.Contains(t, lines[0], "night")
}

func TestReadCommands(t *testing.T) {
	ch := readCommands(strings.NewReader("r\nq\n"))
	var got []string
	for line := range ch {
		got = append(got, line)
	}
	assert.Equal(t, []string{"r", "q"}, got)
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name  string
		opts  options
		check func(t *testing.T, cfg *config.Config)
	}{
		{"imperial", options{imperial: true}, func(t *testing.T, cfg *config.Config) {
			assert.Equal(t, "imperial", cfg.Units)
		}},
		{"metric", options{metric: true}, func(t *testing.T, cfg *config.Config) {
			assert.Equal(t, "metric", cfg.Units)
		}},
		{"auto location", options{autoLocation: true}, func(t *testing.T, cfg *config.Config) {
			assert.True(t, cfg.AutoLocation)
		}},
		{"hide location", options{hideLocation: true}, func(t *testing.T, cfg *config.Config) {
			assert.True(t, cfg.HideLocation)
		}},
		{"serve", options{serve: "127.0.0.1:9000"}, func(t *testing.T, cfg *config.Config) {
			assert.Equal(t, "127.0.0.1:9000", cfg.ServeAddr)
		}},
		{"no flags keep config", options{}, func(t *testing.T, cfg *config.Config) {
			assert.Equal(t, "imperial", cfg.Units)
			assert.Equal(t, "127.0.0.1:8080", cfg.ServeAddr)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default(filepath.Join(t.TempDir(), "config.yaml"))
			cfg.Units = "imperial"
			cfg.ServeAddr = "127.0.0.1:8080"
			applyFlags(cfg, &tt.opts)
			tt.check(t, cfg)
		})
	}
}

func TestSimulatedLabel(t *testing.T) {
	cfg := config.Default("")
	cfg.City = "Berlin"
	assert.Equal(t, "Berlin", simulatedLabel(cfg, ""))
	assert.Equal(t, "Tokyo", simulatedLabel(cfg, "Tokyo"))
	cfg.HideLocation = true
	assert.Empty(t, simulatedLabel(cfg, "Tokyo"))
}

func TestOpenCache(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := config.Default("")
		cfg.CacheBackend = "memory"
		backend, remote, err := openCache(ctx, cfg, logger)
		require.NoError(t, err)
		assert.IsType(t, &cache.MemoryBackend{}, backend)
		assert.Nil(t, remote)
	})

	t.Run("file", func(t *testing.T) {
		cfg := config.Default("")
		cfg.CacheDir = t.TempDir()
		backend, remote, err := openCache(ctx, cfg, logger)
		require.NoError(t, err)
		assert.IsType(t, &cache.FileBackend{}, backend)
		assert.Nil(t, remote)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.Default("")
		cfg.CacheBackend = "redis"
		cfg.RedisAddr = mr.Addr()
		backend, remote, err := openCache(ctx, cfg, logger)
		require.NoError(t, err)
		require.NotNil(t, remote)
		defer remote.Close()
		assert.IsType(t, &cache.RedisBackend{}, backend)
		assert.NoError(t, remote.Ping(ctx))
	})

	t.Run("redis unavailable", func(t *testing.T) {
		cfg := config.Default("")
		cfg.CacheBackend = "redis"
		cfg.RedisAddr = "127.0.0.1:1"
		_, _, err := openCache(ctx, cfg, logger)
		assert.Error(t, err)
	})

	t.Run("memcached unavailable", func(t *testing.T) {
		cfg := config.Default("")
		cfg.CacheBackend = "memcached"
		cfg.MemcachedAddrs = "127.0.0.1:1"
		_, _, err := openCache(ctx, cfg, logger)
		assert.Error(t, err)
	})
}

func TestPrintConditions(t *testing.T) {
	var buf bytes.Buffer
	printConditions(&buf, "hail")
	out := buf.String()
	assert.Contains(t, out, `unknown condition "hail"`)
	for _, c := range models.AllConditions {
		assert.Contains(t, out, string(c))
	}
}

func TestRootCmd_RejectsImperialAndMetric(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--imperial", "--metric"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "imperial")
}

// isolateConfig points config, cache and log paths at a temp dir and selects the
// in-memory cache. The XDG variables cover the built-in defaults used when the
// config file is rejected.
func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv(config.PathEnv, filepath.Join(dir, "config.yaml"))
	t.Setenv("WEATHR_CACHE_BACKEND", "memory")
	t.Setenv("WEATHR_CACHE_DIR", dir)
	t.Setenv("WEATHR_LOG_FILE", filepath.Join(dir, "weathr.log"))
	t.Setenv("WEATHR_SERVE_ADDR", "")
	t.Cleanup(lifecycle.Reset)
	return dir
}

func TestRun_Simulated(t *testing.T) {
	isolateConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	var stdout, stderr bytes.Buffer

	err := run(ctx, &options{simulate: "thunderstorm", night: true}, []string{"New", "York"}, strings.NewReader(""), &stdout, &stderr)

	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "New York")
	assert.Contains(t, stdout.String(), "[simulated]")
	assert.Equal(t, lifecycle.ShuttingDown, lifecycle.CurrentPhase())
}

func TestRun_UnknownSimulatedCondition(t *testing.T) {
	isolateConfig(t)
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), &options{simulate: "hail"}, nil, strings.NewReader(""), &stdout, &stderr)

	assert.ErrorIs(t, err, errExitQuietly)
	assert.Contains(t, stderr.String(), "Available conditions")
	assert.Empty(t, stdout.String())
}

func TestRun_BadConfigFallsBackToDefaults(t *testing.T) {
	dir := isolateConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("units: kelvin\n"), 0o600))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	var stdout, stderr bytes.Buffer

	err := run(ctx, &options{simulate: "clear", silent: true}, nil, strings.NewReader(""), &stdout, &stderr)

	require.NoError(t, err)
	assert.Contains(t, stderr.String(), "Using default configuration.")
	assert.Contains(t, stdout.String(), "°C")
}
