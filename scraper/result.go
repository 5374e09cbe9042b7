package scraper

import (
	"time"

	"github.com/use-agent/scrollsettle/models"
)

// JobResult is what a finished job hands back. It is returned for degraded
// runs too; check Outcome and Extraction for how complete the document is.
type JobResult struct {
	// HTML is the final document, or a placeholder when extraction degraded.
	HTML string

	Title    string
	FinalURL string

	Outcome    Outcome
	Metric     string
	Extraction Extraction

	// Elapsed is the whole job, NavigationElapsed covers connect and load,
	// ConvergenceElapsed covers scrolling.
	Elapsed            time.Duration
	NavigationElapsed  time.Duration
	ConvergenceElapsed time.Duration

	Settings models.Settings
}

// Converged reports whether the page was confirmed stable.
func (r *JobResult) Converged() bool { return r.Outcome.Stable() }

// TimedOut reports whether the overall deadline cut convergence short.
func (r *JobResult) TimedOut() bool { return r.Outcome.State == StateTimedOut }

// ConvergenceInfo renders the convergence metadata for a response.
func (r *JobResult) ConvergenceInfo() models.ConvergenceInfo {
	return models.ConvergenceInfo{
		Converged:   r.Converged(),
		TimedOut:    r.TimedOut(),
		Outcome:     string(r.Outcome.State),
		Attempts:    r.Outcome.Attempts,
		FinalMetric: r.Outcome.FinalMetric,
		Metric:      r.Metric,
		Extraction:  string(r.Extraction.Method),
	}
}
