package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Veirt/weathr/internal/cache"
	"github.com/Veirt/weathr/internal/client"
	"github.com/Veirt/weathr/internal/config"
	"github.com/Veirt/weathr/internal/geocoding"
	"github.com/Veirt/weathr/internal/geolocation"
	httpserver "github.com/Veirt/weathr/internal/http"
	"github.com/Veirt/weathr/internal/lifecycle"
	"github.com/Veirt/weathr/internal/models"
	"github.com/Veirt/weathr/internal/observability"
	"github.com/Veirt/weathr/internal/provider"
	"github.com/Veirt/weathr/internal/refresh"
	"github.com/Veirt/weathr/internal/service"
	"github.com/Veirt/weathr/internal/session"
	"github.com/Veirt/weathr/internal/traffic"
)

const (
	reverseGeocodeTimeout = 5 * time.Second
	healthDegradedWindow  = 15 * time.Minute
	healthDegradedPct     = 50
)

// errExitQuietly ends the command with a non-zero status after the message has
// already been printed.
var errExitQuietly = errors.New("exit")

type printer struct {
	out    io.Writer
	silent bool
}

func (p printer) info(format string, args ...any) {
	if !p.silent {
		fmt.Fprintf(p.out, format+"\n", args...)
	}
}

func run(ctx context.Context, opts *options, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	p := printer{out: stdout, silent: opts.silent}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		fmt.Fprintln(stderr, "Using default configuration.")
		cfg = config.Default(config.ResolvePath())
	}
	applyFlags(cfg, opts)

	logger, err := buildLogger(cfg, opts.verbose)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: logging disabled: %v\n", err)
		logger = zap.NewNop()
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = observability.FlushTelemetry(flushCtx, logger)
	}()
	lifecycle.SetPhase(lifecycle.Starting)

	backend, closer, err := openCache(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: %v; using the file cache\n", err)
		backend, closer = cache.NewFileBackend(cfg.CacheDir), nil
	}
	if closer != nil {
		defer closer.Close()
	}
	store := cache.NewStore(backend, logger)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := store.Flush(flushCtx); err != nil {
			logger.Warn("Cache flush failed", zap.Error(err))
		}
	}()

	units, err := models.ParseUnits(cfg.Units)
	if err != nil {
		units = models.UnitsMetric
	}
	geocoder := geocoding.New(geocoding.Options{Store: store, Logger: logger})
	detector := geolocation.New(geolocation.Options{Store: store, Logger: logger})
	city := strings.TrimSpace(strings.Join(args, " "))

	if opts.simulate != "" {
		cond, err := models.ParseCondition(opts.simulate)
		if err != nil {
			printConditions(stderr, opts.simulate)
			return errExitQuietly
		}
		sess := session.NewSimulated(cond, opts.night, session.Options{
			Location: simulatedLabel(cfg, city),
			Units:    units,
			Logger:   logger,
		})
		return serveAndLoop(ctx, cfg, opts, sess, nil, stdin, stdout, stderr, logger)
	}

	if opts.setDefault {
		return saveDefault(ctx, cfg, city, geocoder, detector, p, stderr)
	}

	label := cfg.City
	if city != "" {
		loc, err := geocoder.GeocodeCity(ctx, city)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %s\n", client.UserMessage(err))
			return errExitQuietly
		}
		cfg.Latitude, cfg.Longitude = loc.Latitude, loc.Longitude
		cfg.AutoLocation = false
		label = loc.Label()
		p.info("Weather for: %s (%.4f, %.4f)", label, loc.Latitude, loc.Longitude)
	}

	if cfg.AutoLocation {
		p.info("Auto-detecting location...")
		geo, err := detector.DetectCached(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "Warning: %s\n", client.UserMessage(err))
		} else {
			cfg.Latitude, cfg.Longitude = geo.Latitude, geo.Longitude
			if label == "" {
				label = geo.City
			}
			p.info("Location: %s (%.4f, %.4f)", orUnknown(geo.City), geo.Latitude, geo.Longitude)
		}
	}

	location := models.WeatherLocation{Latitude: cfg.Latitude, Longitude: cfg.Longitude}
	if label == "" && !cfg.HideLocation {
		rgCtx, cancel := context.WithTimeout(ctx, reverseGeocodeTimeout)
		name, err := geocoder.ReverseGeocode(rgCtx, location, cfg.Language)
		cancel()
		if err != nil {
			logger.Debug("Reverse geocoding failed", zap.Error(err))
		} else {
			label = name
		}
	}
	if cfg.HideLocation {
		label = ""
	}

	prov, err := provider.New(provider.Settings{
		Name:          cfg.Provider,
		Supplementary: cfg.Supplementary,
		MetOffice: provider.MetOfficeConfig{
			APIKey:              cfg.MetOfficeAPIKey,
			IncludeLocationName: cfg.MetOfficeIncludeLocationName,
			DataSource:          cfg.MetOfficeDataSource,
		},
		Timeout:                 cfg.ProviderTimeout,
		BreakerFailureThreshold: cfg.BreakerFailureThreshold,
		BreakerCoolDown:         cfg.BreakerCoolDown,
		Logger:                  logger,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", client.UserMessage(err))
		return errExitQuietly
	}

	svc := service.NewWeatherService(prov, store, logger)
	orch := refresh.New(svc, logger, refresh.WithInterval(cfg.RefreshInterval))
	if err := orch.Start(location, units); err != nil {
		return fmt.Errorf("start refresh: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := orch.Close(closeCtx); err != nil {
			logger.Warn("Refresh task did not finish", zap.Error(err))
		}
	}()

	outcomes := traffic.New()
	sess := session.New(orch, session.Options{
		Location: label,
		Units:    units,
		Logger:   logger,
		Outcomes: outcomes,
	})

	var ping func(context.Context) error
	if closer != nil {
		ping = closer.Ping
	}
	health := &httpserver.HealthConfig{
		Outcomes:           outcomes,
		DegradedWindow:     healthDegradedWindow,
		DegradedFailurePct: healthDegradedPct,
		StartTime:          time.Now(),
		CachePing:          ping,
	}
	return serveAndLoop(ctx, cfg, opts, sess, health, stdin, stdout, stderr, logger)
}

// serveAndLoop starts the optional status server, runs the HUD loop until quit,
// and shuts the server down. health is nil for simulated sessions.
func serveAndLoop(ctx context.Context, cfg *config.Config, opts *options, sess *session.Session, health *httpserver.HealthConfig, stdin io.Reader, stdout, stderr io.Writer, logger *zap.Logger) error {
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.duration)*time.Second)
		defer cancel()
	}

	if cfg.ServeAddr != "" {
		if health == nil {
			health = &httpserver.HealthConfig{StartTime: time.Now()}
		}
		limiter := rate.NewLimiter(rate.Limit(cfg.RefreshRateLimit), cfg.RefreshBurst)
		handler := httpserver.NewHandler(sess, health, logger)
		router := httpserver.NewRouter(handler, logger, httpserver.RouterConfig{
			RefreshLimiter: limiter,
			Outcomes:       health.Outcomes,
		})
		srv := httpserver.NewServer(cfg.ServeAddr, router, logger)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("start status server: %w", err)
		}
		fmt.Fprintf(stderr, "Status server listening on http://%s\n", srv.Addr())
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Status server shutdown incomplete", zap.Error(err))
			}
		}()
	}

	signals, stop := refreshSignals()
	defer stop()

	loop := &hudLoop{
		sess:     sess,
		out:      stdout,
		commands: readCommands(stdin),
		refresh:  signals,
		logger:   logger,
	}
	loop.run(ctx)
	lifecycle.SetPhase(lifecycle.ShuttingDown)
	logger.Info("Shutting down")
	return nil
}

func saveDefault(ctx context.Context, cfg *config.Config, city string, geocoder *geocoding.Geocoder, detector *geolocation.Detector, p printer, stderr io.Writer) error {
	if city != "" {
		loc, err := geocoder.GeocodeCity(ctx, city)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %s\n", client.UserMessage(err))
			return errExitQuietly
		}
		cfg.Latitude, cfg.Longitude = loc.Latitude, loc.Longitude
		cfg.City = loc.Label()
		cfg.AutoLocation = false
	} else {
		p.info("Auto-detecting location...")
		geo, err := detector.Detect(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %s\n", client.UserMessage(err))
			return errExitQuietly
		}
		cfg.Latitude, cfg.Longitude = geo.Latitude, geo.Longitude
		cfg.City = geo.City
		cfg.AutoLocation = true
	}

	if err := cfg.Save(); err != nil {
		fmt.Fprintf(stderr, "Error saving config: %v\n", err)
		return errExitQuietly
	}
	p.info("Default location set to: %s (%.4f, %.4f)", orUnknown(cfg.City), cfg.Latitude, cfg.Longitude)
	p.info("Saved to: %s", cfg.Path)
	return nil
}

// applyFlags layers command-line overrides on top of file and environment values.
func applyFlags(cfg *config.Config, opts *options) {
	if opts.autoLocation {
		cfg.AutoLocation = true
	}
	if opts.hideLocation {
		cfg.HideLocation = true
	}
	switch {
	case opts.imperial:
		cfg.Units = string(models.UnitsImperial)
	case opts.metric:
		cfg.Units = string(models.UnitsMetric)
	}
	if opts.serve != "" {
		cfg.ServeAddr = opts.serve
	}
}

func buildLogger(cfg *config.Config, verbose bool) (*zap.Logger, error) {
	switch {
	case verbose:
		return observability.NewLogger()
	case cfg.LogFile != "":
		return observability.NewLoggerAt(cfg.LogFile)
	default:
		return zap.NewNop(), nil
	}
}

// remoteCache is a network cache backend the status server can ping.
type remoteCache interface {
	Ping(ctx context.Context) error
	Close() error
}

// openCache returns the configured backend. The second result is non-nil for
// network backends and must be closed at exit.
func openCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Backend, remoteCache, error) {
	switch cfg.CacheBackend {
	case "memory":
		return cache.NewMemoryBackend(), nil, nil
	case "memcached":
		mc := cache.NewMemcachedBackend(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err := mc.Ping(ctx); err != nil {
			_ = mc.Close()
			return nil, nil, fmt.Errorf("memcached at %s unavailable: %w", cfg.MemcachedAddrs, err)
		}
		logger.Info("Using memcached cache", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, mc, nil
	case "redis":
		rb, err := cache.NewRedisBackend(ctx, cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("redis at %s unavailable: %w", cfg.RedisAddr, err)
		}
		logger.Info("Using redis cache", zap.String("addr", cfg.RedisAddr))
		return rb, rb, nil
	default:
		return cache.NewFileBackend(cfg.CacheDir), nil, nil
	}
}

func simulatedLabel(cfg *config.Config, city string) string {
	if cfg.HideLocation {
		return ""
	}
	if city != "" {
		return city
	}
	return cfg.City
}

func printConditions(w io.Writer, given string) {
	fmt.Fprintf(w, "Error: unknown condition %q\n\nAvailable conditions:\n", given)
	for _, c := range models.AllConditions {
		fmt.Fprintf(w, "  %s\n", c)
	}
	fmt.Fprintln(w, "\nExamples:\n  weathr --simulate rain\n  weathr --simulate snow --night")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
