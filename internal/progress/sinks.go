package progress

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ConsoleBar draws a single-line progress bar.
type ConsoleBar struct {
	writer io.Writer
	prefix string
	width  int
	mutex  sync.Mutex
	last   int
}

// NewConsoleBar creates a console progress bar writing to writer
// (stderr when nil).
func NewConsoleBar(writer io.Writer, prefix string) *ConsoleBar {
	if writer == nil {
		writer = os.Stderr
	}
	return &ConsoleBar{writer: writer, prefix: prefix, width: 40, last: -1}
}

// WithWidth sets the bar width.
func (c *ConsoleBar) WithWidth(width int) *ConsoleBar {
	c.width = width
	return c
}

// Func returns the bar as a progress callback.
func (c *ConsoleBar) Func() Func {
	return c.Draw
}

// Draw renders ev; repeated percents are skipped.
func (c *ConsoleBar) Draw(ev Event) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if ev.Percent == c.last {
		return
	}
	c.last = ev.Percent

	filled := c.width * ev.Percent / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", c.width-filled)
	_, _ = fmt.Fprintf(c.writer, "\r%s[%s] %3d%% %s", c.prefix, bar, ev.Percent, ev.Message)
	if ev.Percent >= 100 {
		_, _ = fmt.Fprintln(c.writer)
	}
}

// Log returns a callback that logs every event at level.
func Log(logger *slog.Logger, level slog.Level) Func {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ev Event) {
		logger.Log(context.Background(), level, "recognition progress",
			"stage", ev.Stage.String(),
			"percent", ev.Percent,
			"strategy", ev.Strategy,
		)
	}
}

// Multi fans one event out to several callbacks; nil entries are skipped.
func Multi(funcs ...Func) Func {
	return func(ev Event) {
		for _, f := range funcs {
			if f != nil {
				f(ev)
			}
		}
	}
}

// Throttle forwards at most one event per interval. Stage changes and
// the final event always pass.
func Throttle(f Func, interval time.Duration) Func {
	var (
		mu        sync.Mutex
		last      time.Time
		lastStage = Stage(-1)
	)
	return func(ev Event) {
		mu.Lock()
		now := time.Now()
		pass := ev.Percent >= 100 || ev.Stage != lastStage || now.Sub(last) >= interval
		if pass {
			last = now
			lastStage = ev.Stage
		}
		mu.Unlock()
		if pass {
			f(ev)
		}
	}
}
