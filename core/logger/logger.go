package logger

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/cowinbot/core/buildinfo"
	coreconfig "github.com/m3rciful/cowinbot/core/config"
)

var (
	initOnce   sync.Once
	shutdownMu sync.Mutex
	shutdowned bool

	logWriter  *asyncWriter
	logClosers []io.Closer

	levelVar slog.LevelVar

	debugSampler  = newRatioSampler(1, 50)
	traceOverride bool

	// L is the base logger exposed for compatibility while migrating to context-first logging.
	L *slog.Logger

	// DB logs database-related events.
	DB *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
	// TWire logs Telegram wiring steps.
	TWire *slog.Logger
	// Provider logs CoWIN API calls.
	Provider *slog.Logger
	// Dialog logs conversation state machine activity.
	Dialog *slog.Logger
	// Searches logs search audit trail activity.
	Searches *slog.Logger
)

// settings holds everything InitLogger resolves from config before any
// global state is touched.
type settings struct {
	format    logFormat
	level     slog.Level
	keyOrder  []string
	sampleNum int
	sampleDen int
	profile   string
	dir       string
	file      string
}

// InitLogger configures the global structured logger. Repeat calls are no-ops.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		st := resolveSettings(cfg)
		levelVar.Set(st.level)
		debugSampler.Set(st.sampleNum, st.sampleDen)
		traceOverride = detectTraceFlag()

		sinks, closers := openSinks(st)
		logClosers = closers
		logWriter = newAsyncWriter(sinks, 64*1024)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   logWriter,
			format:   st.format,
			keyOrder: st.keyOrder,
		}))
		slog.SetDefault(L)

		wireComponents()
		logStartup(st)
	})
	return initErr
}

func resolveSettings(cfg *coreconfig.Config) settings {
	st := settings{
		format:    formatJSON,
		level:     slog.LevelInfo,
		keyOrder:  append([]string(nil), defaultKeyOrder...),
		sampleNum: 1,
		sampleDen: 50,
		profile:   "prod",
	}
	if cfg == nil {
		return st
	}
	lc := cfg.Logging

	if p := strings.TrimSpace(lc.Profile); p != "" {
		st.profile = strings.ToLower(p)
	}
	st.format = resolveFormat(lc.Format, st.profile)

	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		st.level = slog.LevelDebug
	case "warn", "warning":
		st.level = slog.LevelWarn
	case "error":
		st.level = slog.LevelError
	}

	if order := parseKeyOrder(lc.KeysOrder); len(order) > 0 {
		st.keyOrder = order
	}

	if spec := strings.TrimSpace(lc.DebugSample); spec != "" {
		num, den := parseRatioSpec(spec)
		switch {
		case num == 0 && den == 0:
			st.sampleNum, st.sampleDen = 0, 0
		case num > 0 && den > 0:
			st.sampleNum, st.sampleDen = num, den
		}
	}

	st.dir = strings.TrimSpace(lc.Dir)
	st.file = strings.TrimSpace(lc.BotFile)
	return st
}

func resolveFormat(raw, profile string) logFormat {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "kv", "text", "pretty":
		return formatKV
	case "json":
		return formatJSON
	}
	// Unset format follows the profile: dev machines get readable KV lines.
	if profile == "debug" || profile == "dev" {
		return formatKV
	}
	return formatJSON
}

func parseKeyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return nil
	}
	var order []string
	for _, p := range strings.Split(raw, ",") {
		if key := strings.TrimSpace(p); key != "" {
			order = append(order, key)
		}
	}
	return order
}

// openSinks always returns stdout first. A file sink is added only when both
// dir and file are configured and the file can actually be opened; failures
// degrade to stdout-only logging rather than aborting startup.
func openSinks(st settings) ([]io.Writer, []io.Closer) {
	sinks := []io.Writer{os.Stdout}
	if st.dir == "" || st.file == "" {
		return sinks, nil
	}
	if err := os.MkdirAll(st.dir, 0o755); err != nil {
		log.Printf("logger: failed to create log dir %s: %v", st.dir, err)
		return sinks, nil
	}
	path := filepath.Join(st.dir, st.file)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("logger: failed to open log file %s: %v", path, err)
		return sinks, nil
	}
	return append(sinks, f), []io.Closer{f}
}

func wireComponents() {
	if L == nil {
		return
	}
	DB = L.With("component", "db")
	TG = L.With("component", "tg")
	MIG = L.With("component", "db.migrate")
	TWire = L.With("component", "tg.wire")
	Provider = L.With("component", "provider")
	Dialog = L.With("component", "dialog")
	Searches = L.With("component", "searchlog")
}

func logStartup(st settings) {
	if L == nil {
		return
	}
	L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
		slog.String("component", "app"),
		slog.String("event", "startup"),
		slog.String("go_version", runtime.Version()),
		slog.String("build_version", buildinfo.Version),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
		slog.String("cfg_profile", st.profile),
	)
}

// Shutdown flushes buffered log output and closes opened sinks.
func Shutdown() error {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if shutdowned {
		return nil
	}
	shutdowned = true

	var errs []error
	if logWriter != nil {
		errs = append(errs, logWriter.Flush(), logWriter.Close())
	}
	for _, c := range logClosers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Background returns context.Background() provided for compatibility with existing call sites.
func Background() context.Context {
	return context.Background()
}

// LogEvent ensures event attribute presence with context-aware logging.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		logg = L
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component constructs a logger scoped to the provided component attribute.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return L
	}
	return L.With("component", name)
}

// Event logs with component scope resolved automatically. Safe to call
// before InitLogger: it falls back to the context logger or drops the record.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	logg := Component(component)
	if logg == nil {
		logg = FromContext(ctx)
		if logg != nil {
			if name := strings.TrimSpace(component); name != "" {
				logg = logg.With("component", name)
			}
		}
	}
	LogEvent(ctx, logg, level, event, attrs...)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

func detectTraceFlag() bool {
	return isTruthy(os.Getenv("TRACE")) || isTruthy(os.Getenv("LOG_TRACE"))
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// ShouldSampleDebug reports whether debug-level details should be logged for high-volume events.
func ShouldSampleDebug() bool {
	if traceOverride {
		return true
	}
	return debugSampler.Allow()
}

// TraceEnabled indicates whether trace override is forcing full debug output.
func TraceEnabled() bool {
	return traceOverride
}
