package middleware

import tele "gopkg.in/telebot.v4"

// countingContext decorates tele.Context so every successful Send/Reply bumps
// the per-update message counter and records keyboard usage. The router reads
// the counters back for its summary line.
type countingContext struct{ tele.Context }

// Send proxies tele.Context.Send while updating message counters.
func (cc countingContext) Send(what interface{}, opts ...interface{}) error {
	if err := cc.Context.Send(what, opts...); err != nil {
		return err
	}
	cc.bump(opts)
	return nil
}

// Reply proxies tele.Context.Reply while updating message counters.
func (cc countingContext) Reply(what interface{}, opts ...interface{}) error {
	if err := cc.Context.Reply(what, opts...); err != nil {
		return err
	}
	cc.bump(opts)
	return nil
}

func (cc countingContext) bump(opts []interface{}) {
	cc.Set("messages", intFrom(cc.Context, "messages")+1)
	if carriesKeyboard(opts) {
		cc.Set("kb", true)
	}
}

func carriesKeyboard(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

// MessageMetricsMiddleware instruments context to track messages count and keyboard usage.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		c.Set("messages", 0)
		c.Set("kb", false)
		return next(countingContext{Context: c})
	}
}

// GetCounters reads message count and keyboard presence flags from context.
func GetCounters(c tele.Context) (int, bool) {
	return intFrom(c, "messages"), boolFrom(c, "kb")
}

func intFrom(c tele.Context, key string) int {
	if n, ok := c.Get(key).(int); ok {
		return n
	}
	return 0
}

func boolFrom(c tele.Context, key string) bool {
	if b, ok := c.Get(key).(bool); ok {
		return b
	}
	return false
}
