package scraper

import (
	"context"

	"github.com/use-agent/scrollsettle/engine"
)

// Growth metric names accepted in job configs.
const (
	MetricNodes  = "nodes"
	MetricHeight = "height"
)

// GrowthMetric measures a scalar that grows as the page loads more content.
type GrowthMetric interface {
	Name() string
	Measure(ctx context.Context, page engine.Page, target ScrollTarget) (int, error)
}

// MetricByName returns the metric for name, defaulting to node count.
func MetricByName(name string) GrowthMetric {
	if name == MetricHeight {
		return HeightMetric{}
	}
	return NodeCountMetric{}
}

// nodeCountJS returns -1 when the target cannot be resolved.
const nodeCountJS = `(sel) => {
	const el = sel ? document.querySelector(sel) : (document.scrollingElement || document.documentElement);
	if (!el) return -1;
	return el.getElementsByTagName('*').length;
}`

const heightJS = `(sel) => {
	const el = sel ? document.querySelector(sel) : null;
	if (el) return el.scrollHeight;
	const d = document.documentElement, b = document.body;
	return Math.max(d ? d.scrollHeight : 0, b ? b.scrollHeight : 0);
}`

// NodeCountMetric counts element descendants of the scroll target. It falls
// back to HeightMetric when node counting is unavailable.
type NodeCountMetric struct{}

func (NodeCountMetric) Name() string { return MetricNodes }

func (NodeCountMetric) Measure(ctx context.Context, page engine.Page, target ScrollTarget) (int, error) {
	res, err := page.Eval(ctx, nodeCountJS, targetSelector(target))
	if err != nil {
		return 0, err
	}
	if n := res.Int(); n >= 0 {
		return n, nil
	}
	return HeightMetric{}.Measure(ctx, page, target)
}

// HeightMetric reads the scrollable pixel height of the target, or of the
// document for the root target.
type HeightMetric struct{}

func (HeightMetric) Name() string { return MetricHeight }

func (HeightMetric) Measure(ctx context.Context, page engine.Page, target ScrollTarget) (int, error) {
	res, err := page.Eval(ctx, heightJS, targetSelector(target))
	if err != nil {
		return 0, err
	}
	return res.Int(), nil
}

// targetSelector is "" for the root so scripts fall back to the document.
func targetSelector(t ScrollTarget) string {
	if t.Root {
		return ""
	}
	return t.Selector()
}
