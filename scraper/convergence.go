package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/use-agent/scrollsettle/engine"
)

// State is a terminal state of one convergence run.
type State string

const (
	// StateStable: the growth metric held still for the full idle window.
	StateStable State = "stable"
	// StateExhausted: every scroll attempt ran without a stable window.
	StateExhausted State = "exhausted"
	// StateTimedOut: the overall deadline ended detection.
	StateTimedOut State = "timed_out"
	// StateDetached: the page became unusable.
	StateDetached State = "detached"
)

// Outcome summarises a convergence run. Only StateStable is a confirmed
// convergence; every other state still leaves usable, partial content.
type Outcome struct {
	State       State
	Attempts    int
	FinalMetric int
	Elapsed     time.Duration
}

// Stable reports whether convergence was confirmed.
func (o Outcome) Stable() bool { return o.State == StateStable }

// scrollJS scrolls the target to its maximum extent in one step, clicking
// a visible "load more" control first when one is configured.
const scrollJS = `(sel, loadMore) => {
	if (loadMore) {
		const btn = document.querySelector(loadMore);
		if (btn && btn.offsetParent !== null) {
			try { btn.click(); } catch (e) {}
		}
	}
	const el = sel ? document.querySelector(sel) : null;
	if (el && el !== document.scrollingElement && el !== document.documentElement && el !== document.body) {
		el.scrollTop = el.scrollHeight;
		return true;
	}
	const root = document.scrollingElement || document.documentElement;
	window.scrollTo(0, root.scrollHeight);
	return !sel || !!el;
}`

// minPollInterval replaces a non-positive PollInterval.
const minPollInterval = 10 * time.Millisecond

// Detector drives scroll attempts and watches a growth metric until the
// page stops growing.
//
// Each attempt scrolls once, then samples the metric every PollInterval for
// an observation window of ScrollDelay (at least one poll). The page is
// stable once the metric has not changed for IdleStable; the stability
// clock survives across attempts and only a metric change resets it.
// MaxAttempts and Timeout are independent bounds, whichever fires first.
type Detector struct {
	Metric           GrowthMetric
	MaxAttempts      int
	ScrollDelay      time.Duration
	IdleStable       time.Duration
	PollInterval     time.Duration
	Timeout          time.Duration
	LoadMoreSelector string
	Logger           *slog.Logger
}

// convergenceState is the mutable state of one Detect call.
type convergenceState struct {
	last        int
	known       bool
	stableSince time.Time
	attempts    int
}

// observe folds one reading into the state and reports whether the idle
// window has been reached.
func (st *convergenceState) observe(v int, now time.Time, idle time.Duration) bool {
	if !st.known {
		st.last, st.known = v, true
		return false
	}
	if v != st.last {
		// Growth or shrink: either way the page is still moving.
		st.last = v
		st.stableSince = time.Time{}
		return false
	}
	if st.stableSince.IsZero() {
		st.stableSince = now
	}
	return now.Sub(st.stableSince) >= idle
}

// Detect runs scroll/observe cycles on target until a terminal state.
// It never returns an error: failures become StateDetached or StateTimedOut.
func (d *Detector) Detect(ctx context.Context, page engine.Page, target ScrollTarget) Outcome {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metric := d.Metric
	if metric == nil {
		metric = NodeCountMetric{}
	}
	maxAttempts := d.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	poll := d.PollInterval
	if poll <= 0 {
		poll = minPollInterval
	}

	start := time.Now()
	deadline := start.Add(d.Timeout)
	st := &convergenceState{}

	finish := func(s State) Outcome {
		o := Outcome{
			State:       s,
			Attempts:    st.attempts,
			FinalMetric: st.last,
			Elapsed:     time.Since(start),
		}
		logger.Debug("convergence finished",
			"state", o.State,
			"attempts", o.Attempts,
			"metric", metric.Name(),
			"finalMetric", o.FinalMetric,
			"elapsed", o.Elapsed,
		)
		return o
	}

	// failed maps an error from the page to a terminal state, or "" when
	// the error is transient and observation should continue.
	failed := func(err error) State {
		if ctx.Err() != nil {
			return StateTimedOut
		}
		if errors.Is(err, engine.ErrPageClosed) || page.Closed(ctx) {
			return StateDetached
		}
		return ""
	}

	polls := d.pollsPerAttempt()
	scrollSel := targetSelector(target)

	for {
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			return finish(StateTimedOut)
		}

		st.attempts++
		if _, err := page.Eval(ctx, scrollJS, scrollSel, d.LoadMoreSelector); err != nil {
			if s := failed(err); s != "" {
				return finish(s)
			}
			logger.Debug("scroll command failed", "attempt", st.attempts, "error", err)
		}

		if !st.known {
			v, err := metric.Measure(ctx, page, target)
			if err != nil {
				if s := failed(err); s != "" {
					return finish(s)
				}
				logger.Debug("baseline measurement failed", "error", err)
			} else {
				st.observe(v, time.Now(), d.IdleStable)
			}
		}

		for i := 0; i < polls; i++ {
			wait := poll
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return finish(StateTimedOut)
			}
			if wait > remaining {
				wait = remaining
			}
			if err := sleepCtx(ctx, wait); err != nil {
				return finish(StateTimedOut)
			}
			if !time.Now().Before(deadline) {
				return finish(StateTimedOut)
			}

			v, err := metric.Measure(ctx, page, target)
			if err != nil {
				if s := failed(err); s != "" {
					return finish(s)
				}
				logger.Debug("measurement failed", "attempt", st.attempts, "error", err)
				continue
			}
			if st.observe(v, time.Now(), d.IdleStable) {
				return finish(StateStable)
			}
		}

		if st.attempts >= maxAttempts {
			return finish(StateExhausted)
		}
	}
}

// pollsPerAttempt is ceil(ScrollDelay / PollInterval), at least 1.
func (d *Detector) pollsPerAttempt() int {
	if d.PollInterval <= 0 || d.ScrollDelay <= d.PollInterval {
		return 1
	}
	n := int(d.ScrollDelay / d.PollInterval)
	if d.ScrollDelay%d.PollInterval != 0 {
		n++
	}
	return n
}
