package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler renders slog records as single KV or JSON lines with a
// stable key prefix order. Unknown keys sort alphabetically after the prefix.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	groups []string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.cfg.level == nil {
		return level >= slog.LevelInfo
	}
	return level >= h.cfg.level.Level()
}

// Handle flattens the record into a field map, enriches it from context and
// hands the rendered line to the async writer.
func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return fmt.Errorf("logger: writer not initialized")
	}

	asJSON := h.cfg.format == formatJSON
	out := make(map[string]any, 16)

	when := r.Time.UTC()
	out["ts"] = when.Truncate(time.Millisecond).Format(timeFormatMillis)
	out["level"] = normalizeLevel(r.Level.String())
	if asJSON {
		out["ts_unix_nano"] = when.UnixNano()
	}

	collect := func(a slog.Attr) {
		h.flatten(joinGroups(h.groups, ""), a, out)
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(a)
		return true
	})

	fillFromContext(ctx, out)
	h.compactRIDField(out, asJSON)

	if ev, _ := stringField(out, "event"); ev == "" {
		if r.Message != "" {
			out["event"] = r.Message
		} else {
			out["event"] = "unknown"
		}
	}
	if comp, _ := stringField(out, "component"); comp == "" {
		out["component"] = "app"
	}

	sanitizeEnumerations(out)
	pruneEmpty(out)

	var line []byte
	var err error
	if asJSON {
		line, err = renderJSON(out, h.cfg.keyOrder)
	} else {
		line = renderKV(out, h.cfg.keyOrder)
	}
	if err != nil {
		return err
	}
	if n := len(line); n == 0 || line[n-1] != '\n' {
		line = append(line, '\n')
	}
	return h.cfg.writer.Write(line)
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

// compactRIDField shortens the rid field for readability. JSON output keeps
// the raw value under rid_full so correlation across systems stays possible.
func (h *structuredHandler) compactRIDField(out map[string]any, asJSON bool) {
	rid, ok := stringField(out, "rid")
	if !ok || rid == "" {
		return
	}
	compact := CompactRID(rid)
	if compact == "" || compact == rid {
		return
	}
	if asJSON {
		if _, seen := out["rid_full"]; !seen {
			out["rid_full"] = rid
		}
	}
	out["rid"] = compact
}

// flatten walks an attr tree, dotting group names into key prefixes, and
// stores each normalized leaf into out.
func (h *structuredHandler) flatten(prefix string, attr slog.Attr, out map[string]any) {
	key := attr.Key
	switch {
	case key == "":
		key = prefix
	case prefix != "":
		key = prefix + "." + key
	}
	if attr.Value.Kind() == slog.KindGroup {
		for _, child := range attr.Value.Group() {
			h.flatten(key, child, out)
		}
		return
	}
	if key == "" {
		return
	}
	k, v, ok := normalizeAttr(key, attr.Value)
	if ok {
		out[k] = v
	}
}

func joinGroups(groups []string, leaf string) string {
	if len(groups) == 0 {
		return leaf
	}
	joined := strings.Join(groups, ".")
	if leaf == "" {
		return joined
	}
	return joined + "." + leaf
}

// normalizeAttr converts a slog value into a plain Go value suitable for both
// renderers. Durations become rounded millisecond integers under a *_ms key.
func normalizeAttr(key string, val slog.Value) (string, any, bool) {
	if key == "" {
		return "", nil, false
	}
	switch val.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(val.String()), true
	case slog.KindBool:
		return key, val.Bool(), true
	case slog.KindInt64:
		return key, val.Int64(), true
	case slog.KindUint64:
		if u := val.Uint64(); u > math.MaxInt64 {
			return key, u, true
		}
		return key, int64(val.Uint64()), true
	case slog.KindFloat64:
		return key, val.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(val.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, val.Time().UTC().Format(time.RFC3339Nano), true
	case slog.KindAny:
		switch x := val.Any().(type) {
		case nil:
			return key, nil, false
		case error:
			return key, x.Error(), true
		case string:
			return key, strings.TrimSpace(x), true
		case time.Duration:
			return durationKey(key), RoundMS(x).Milliseconds(), true
		case fmt.Stringer:
			return key, x.String(), true
		default:
			return key, fmt.Sprint(x), true
		}
	default:
		return key, val.Any(), true
	}
}

func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_duration"):
		return strings.TrimSuffix(key, "_duration") + "_duration_ms"
	case !strings.HasSuffix(key, "_ms"):
		return key + "_ms"
	}
	return key
}

func sanitizeEnumerations(out map[string]any) {
	if level, ok := stringField(out, "level"); ok {
		out["level"] = normalizeLevel(level)
	}
	if s, ok := stringField(out, "status"); ok && s != "" {
		if canonical, known := normalizeStatus(s); known {
			out["status"] = canonical
		} else {
			out["status"] = s
		}
	}
	if o, ok := stringField(out, "outcome"); ok && o != "" {
		canonical, known := normalizeOutcome(o)
		if !known {
			delete(out, "outcome")
		} else {
			out["outcome"] = canonical
		}
	}
}

func pruneEmpty(out map[string]any) {
	for k, v := range out {
		switch x := v.(type) {
		case nil:
			delete(out, k)
		case string:
			if x == "" {
				delete(out, k)
			}
		case fmt.Stringer:
			if x.String() == "" {
				delete(out, k)
			}
		}
	}
}

func renderJSON(out map[string]any, order []string) ([]byte, error) {
	var buf strings.Builder
	buf.WriteByte('{')
	written := make(map[string]struct{}, len(out))
	emit := func(k string) error {
		data, err := json.Marshal(out[k])
		if err != nil {
			return err
		}
		if len(written) > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(k))
		buf.WriteByte(':')
		buf.Write(data)
		written[k] = struct{}{}
		return nil
	}
	for _, key := range order {
		if _, ok := out[key]; !ok {
			continue
		}
		if err := emit(key); err != nil {
			return nil, err
		}
	}
	rest := make([]string, 0, len(out))
	for k := range out {
		if _, done := written[k]; !done {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		if err := emit(key); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return []byte(buf.String()), nil
}

func renderKV(out map[string]any, order []string) []byte {
	var b strings.Builder
	for i, key := range orderedKeys(out, order) {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(kvValue(out[key]))
	}
	return []byte(b.String())
}

// orderedKeys returns the keys present in out: first those listed in order,
// in that order, then the rest sorted.
func orderedKeys(out map[string]any, order []string) []string {
	keys := make([]string, 0, len(out))
	placed := make(map[string]struct{}, len(out))
	for _, key := range order {
		if _, ok := out[key]; ok {
			keys = append(keys, key)
			placed[key] = struct{}{}
		}
	}
	tail := len(keys)
	for key := range out {
		if _, ok := placed[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys[tail:])
	return keys
}

func kvValue(val any) string {
	switch v := val.(type) {
	case string:
		return quoteIfNeeded(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return quoteIfNeeded(fmt.Sprint(v))
	}
}

func quoteIfNeeded(s string) string {
	if s != "" && strings.IndexFunc(s, needsQuote) >= 0 {
		return strconv.Quote(s)
	}
	return s
}

func needsQuote(r rune) bool {
	return r <= 32 || r == '=' || r == '"'
}

func stringField(out map[string]any, key string) (string, bool) {
	v, ok := out[key]
	if !ok {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}

type ctxField struct {
	key  string
	read func(context.Context) any
}

var ctxFields = []ctxField{
	{"rid", func(ctx context.Context) any {
		if rid := RIDFrom(ctx); rid != "" {
			return rid
		}
		return nil
	}},
	{"user_id", func(ctx context.Context) any {
		if id := UserIDFrom(ctx); id != 0 {
			return id
		}
		return nil
	}},
	{"update_id", func(ctx context.Context) any {
		if id := UpdateIDFrom(ctx); id != 0 {
			return id
		}
		return nil
	}},
	{"chat_id", func(ctx context.Context) any {
		if id := ChatIDFrom(ctx); id != 0 {
			return id
		}
		return nil
	}},
	{"handler", func(ctx context.Context) any {
		if h := HandlerFrom(ctx); h != "" {
			return h
		}
		return nil
	}},
}

// fillFromContext copies correlation identifiers from ctx unless the record
// already carries them as explicit attrs.
func fillFromContext(ctx context.Context, out map[string]any) {
	if ctx == nil {
		return
	}
	for _, f := range ctxFields {
		if _, explicit := out[f.key]; explicit {
			continue
		}
		if v := f.read(ctx); v != nil {
			out[f.key] = v
		}
	}
}
