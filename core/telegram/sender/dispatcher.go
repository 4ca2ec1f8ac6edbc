package sender

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/cowinbot/core/logger"
	"github.com/m3rciful/cowinbot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the chat lane is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	// LaneBuffer bounds the number of pending jobs per chat.
	LaneBuffer   int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
	// LaneIdleTTL controls how long an idle chat lane keeps its worker alive.
	LaneIdleTTL time.Duration
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

type lane struct {
	jobs chan job
	dead bool
}

// Dispatcher executes outbound Telegram calls asynchronously with retries.
// Jobs for the same chat run strictly in enqueue order on a dedicated lane;
// different chats proceed in parallel.
type Dispatcher struct {
	opts  Options
	mu    sync.Mutex
	lanes map[int64]*lane
	stop  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
	errs  atomic.Uint64
}

// NewDispatcher starts a dispatcher with sane defaults if options are zeroed.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.LaneBuffer <= 0 {
		opts.LaneBuffer = 64
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}
	if opts.LaneIdleTTL <= 0 {
		opts.LaneIdleTTL = 5 * time.Minute
	}

	return &Dispatcher{
		opts:  opts,
		lanes: make(map[int64]*lane),
		stop:  make(chan struct{}),
	}
}

// Enqueue schedules the provided function on the chat's lane.
// The run closure must be idempotent if retries are desired.
func (d *Dispatcher) Enqueue(ctx context.Context, chatID int64, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	select {
	case <-d.stop:
		return ErrQueueClosed
	default:
	}

	j := job{
		ctx:      ctx,
		action:   action,
		endpoint: endpoint,
		run:      run,
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.stop:
		return ErrQueueClosed
	default:
	}

	ln := d.lanes[chatID]
	if ln == nil || ln.dead {
		ln = &lane{jobs: make(chan job, d.opts.LaneBuffer)}
		d.lanes[chatID] = ln
		d.wg.Add(1)
		go d.worker(chatID, ln)
	}

	select {
	case ln.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of failed jobs.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops accepting jobs, drains pending lanes, and waits for workers.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.stop)
		d.wg.Wait()
	})
}

func (d *Dispatcher) worker(chatID int64, ln *lane) {
	defer d.wg.Done()
	idle := time.NewTimer(d.opts.LaneIdleTTL)
	defer idle.Stop()

	for {
		select {
		case j := <-ln.jobs:
			d.handleJob(j)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(d.opts.LaneIdleTTL)
		case <-idle.C:
			// Retire the lane only when its queue is provably empty so an
			// Enqueue racing with retirement cannot strand a job.
			d.mu.Lock()
			if len(ln.jobs) == 0 {
				ln.dead = true
				delete(d.lanes, chatID)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			idle.Reset(d.opts.LaneIdleTTL)
		case <-d.stop:
			d.drain(chatID, ln)
			return
		}
	}
}

func (d *Dispatcher) drain(chatID int64, ln *lane) {
	d.mu.Lock()
	ln.dead = true
	delete(d.lanes, chatID)
	d.mu.Unlock()
	for {
		select {
		case j := <-ln.jobs:
			d.handleJob(j)
		default:
			return
		}
	}
}

func (d *Dispatcher) handleJob(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	budget, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	maxAttempts := d.opts.MaxRetries + 1
	start := time.Now()
	logger.Debug(ctx, "tg.sender", "send.start", j.attrs(ctx)...)

	fail := func(err error, attempts int) {
		d.errs.Add(1)
		logger.Error(ctx, "tg.sender", "send.fail",
			append(j.attrs(ctx),
				slog.String("err", sanitizeErrorMessage(err)),
				slog.String("err_code", classifyError(err)),
				slog.Int("elapsed_ms", elapsedMS(start)),
				slog.Int("attempts", attempts),
			)...,
		)
	}

	for attempt := 1; ; attempt++ {
		if err := budget.Err(); err != nil {
			fail(err, maxAttempts)
			return
		}

		err := j.run()
		if err == nil {
			attrs := j.attrs(ctx)
			if attempt > 1 {
				logger.Info(ctx, "tg.sender", "send.retry.success",
					append(j.attrs(ctx),
						slog.Int("attempt", attempt),
						slog.Int("elapsed_ms", elapsedMS(start)),
					)...,
				)
				attrs = append(attrs, slog.Int("attempt", attempt))
			}
			logger.Debug(ctx, "tg.sender", "send.success",
				append(attrs, slog.Int("elapsed_ms", elapsedMS(start)))...)
			return
		}

		if attempt >= maxAttempts || !netutil.ShouldRetry(err) {
			fail(err, maxAttempts)
			return
		}

		// Linear backoff, bounded by the job budget.
		delay := d.opts.RetryBackoff * time.Duration(attempt)
		if !sleepCtx(budget, delay) {
			fail(budget.Err(), maxAttempts)
			return
		}
		logger.Debug(ctx, "tg.sender", "send.retry.backoff",
			append(j.attrs(ctx),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)...,
		)
	}
}

// sleepCtx waits for d and reports false if ctx expired first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (j job) attrs(ctx context.Context) []slog.Attr {
	out := make([]slog.Attr, 0, 6)
	out = append(out, slog.String("action", j.action))
	if j.endpoint != "" {
		out = append(out, slog.String("endpoint", j.endpoint))
	}
	if rid := logger.RIDFrom(ctx); rid != "" {
		out = append(out, slog.String("rid", rid))
	}
	if id := logger.UpdateIDFrom(ctx); id != 0 {
		out = append(out, slog.Int("update_id", id))
	}
	if id := logger.ChatIDFrom(ctx); id != 0 {
		out = append(out, slog.Int64("chat_id", id))
	}
	if id := logger.UserIDFrom(ctx); id != 0 {
		out = append(out, slog.Int64("user_id", id))
	}
	return out
}

func elapsedMS(start time.Time) int {
	return int(logger.RoundMS(time.Since(start)).Milliseconds())
}

// classifyError maps transport failures onto a small stable err_code set so
// dashboards do not have to parse error strings.
func classifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}
	if netErr := net.Error(nil); errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case opErr.Timeout():
			return "timeout"
		case opErr.Op == "dial":
			return "dial"
		}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return "timeout"
		}
		if inner := urlErr.Err; inner != nil && !errors.Is(inner, err) {
			if kind := classifyError(inner); kind != "" && kind != "unknown" {
				return kind
			}
		}
	}

	switch status := httpStatusFromError(err); {
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}
	return "unknown"
}

// sanitizeErrorMessage prevents accidental leakage of Telegram bot tokens in logs.
func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

var statusSuffixRe = regexp.MustCompile(`\((\d{3})\)\s*$`)

// httpStatusFromError digs an HTTP status code out of telebot errors. Telebot
// formats unknown API errors as "telegram: ... (400)", hence the suffix parse.
func httpStatusFromError(err error) int {
	if err == nil {
		return 0
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return http.StatusTooManyRequests
	}
	if m := statusSuffixRe.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	return 0
}
