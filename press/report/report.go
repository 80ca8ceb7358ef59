// Package report defines the port that pipelines use to publish recoverable, per-file failures.  A failure reported
// here never stops a pipeline; the remaining files are still processed.
package report

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"
	"github.com/swdunlop/html-go/hog"
)

// A Problem describes a recoverable failure processing a single file.
type Problem struct {
	File    string // root relative source file
	Stage   string // pipeline stage, such as "scss" or "include"
	Message string
}

func (p Problem) Error() string {
	if p.File == `` {
		return fmt.Sprintf(`%s: %s`, p.Stage, p.Message)
	}
	return fmt.Sprintf(`%s: %s: %s`, p.File, p.Stage, p.Message)
}

// A Reporter consumes problems.  Implementations must be safe for concurrent use since pipelines run concurrently.
type Reporter interface {
	Report(ctx context.Context, p Problem)
}

// Func adapts a function to the Reporter interface.
type Func func(ctx context.Context, p Problem)

// Report implements Reporter.
func (fn Func) Report(ctx context.Context, p Problem) { fn(ctx, p) }

// Discard ignores every problem.
var Discard Reporter = Func(func(context.Context, Problem) {})

// Log returns a reporter that logs problems as errors using the logger from the context.
func Log() Reporter {
	return Func(func(ctx context.Context, p Problem) {
		Event(hog.From(ctx).Error(), p).Msg(Title(p.Stage))
	})
}

// Notify returns a reporter that raises a desktop notification for each problem.  Notification failures are logged at
// debug level since the desktop may simply not support them.
func Notify(app string) Reporter {
	beeep.AppName = app
	return Func(func(ctx context.Context, p Problem) {
		err := beeep.Notify(Title(p.Stage), p.File+`: `+p.Message, ``)
		if err != nil {
			hog.From(ctx).Debug().Err(err).Msg(`desktop notification failed`)
		}
	})
}

// Title returns the notification title for a stage.
func Title(stage string) string {
	switch stage {
	case `scss`, `css`:
		return `SCSS Error`
	case `include`, `minify`:
		return `JS Error`
	case `template`:
		return `HTML Error`
	case `optimize`:
		return `Image Error`
	case `copy`:
		return `Copy Error`
	default:
		return `Build Error`
	}
}

// Multi fans problems out to every reporter in order.
func Multi(reporters ...Reporter) Reporter {
	return Func(func(ctx context.Context, p Problem) {
		for _, r := range reporters {
			r.Report(ctx, p)
		}
	})
}

// A Collector records problems, which is mostly useful for tests and summaries.
type Collector struct {
	mu       sync.Mutex
	problems []Problem
}

// Report implements Reporter.
func (c *Collector) Report(_ context.Context, p Problem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.problems = append(c.problems, p)
}

// Problems returns a copy of the problems reported so far.
func (c *Collector) Problems() []Problem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Problem(nil), c.problems...)
}

// A Counter wraps a reporter and counts the problems passing through it.
type Counter struct {
	Reporter
	mu    sync.Mutex
	count int
}

// Report implements Reporter.
func (c *Counter) Report(ctx context.Context, p Problem) {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
	c.Reporter.Report(ctx, p)
}

// Count returns the number of problems reported.
func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Event adds the fields of a problem to a zerolog event; convenient for callers that want to log a problem
// alongside other context.
func Event(evt *zerolog.Event, p Problem) *zerolog.Event {
	return evt.Str(`file`, p.File).Str(`stage`, p.Stage).Str(`problem`, p.Message)
}
