package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/use-agent/scrollsettle/models"
)

// CLI flags
var (
	apiURL     = flag.String("api-url", "http://localhost:8080", "scrollsettle API base URL")
	apiKey     = flag.String("api-key", "", "API key for authenticated requests")
	runs       = flag.Int("runs", 3, "Number of runs per URL for averaging")
	maxScrolls = flag.Int("max-scrolls", 20, "Scroll attempt cap per job")
	metric     = flag.String("metric", "nodes", "Growth metric: nodes or height")
	output     = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Feeds covering the common loading patterns: window scroll, inner scroll
// container, and a load-more button.
var testFeeds = []struct {
	Label    string
	URL      string
	Item     string
	LoadMore string
}{
	{"Window", "https://news.ycombinator.com/newest", "tr.athing", "a.morelink"},
	{"Inner", "https://github.com/go-rod/rod/issues", "div[id^=issue_]", ""},
	{"Feed", "https://dev.to/t/go", "div.crayons-story", ""},
	{"Static", "https://example.com", "p", ""},
}

// --- Benchmark result types ---

type runResult struct {
	Run           int    `json:"run"`
	TotalMs       int64  `json:"total_ms"`
	NavigationMs  int64  `json:"navigation_ms"`
	ConvergenceMs int64  `json:"convergence_ms"`
	Outcome       string `json:"outcome"`
	Attempts      int    `json:"attempts"`
	FinalMetric   int    `json:"final_metric"`
	Extraction    string `json:"extraction"`
	Items         int    `json:"items"`
	ContentLength int    `json:"content_length"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}

type urlAverages struct {
	TotalMs       float64 `json:"total_ms"`
	ConvergenceMs float64 `json:"convergence_ms"`
	Attempts      float64 `json:"attempts"`
	Items         float64 `json:"items"`
	ContentLength float64 `json:"content_length"`
}

type urlResult struct {
	URL      string       `json:"url"`
	Label    string       `json:"label"`
	Runs     []runResult  `json:"runs"`
	Averages *urlAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp  string      `json:"timestamp"`
	APIURL     string      `json:"api_url"`
	RunsPerURL int         `json:"runs_per_url"`
	MaxScrolls int         `json:"max_scrolls"`
	Metric     string      `json:"metric"`
	Results    []urlResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== scrollsettle convergence benchmark ===")
	fmt.Printf("API URL:     %s\n", *apiURL)
	fmt.Printf("Runs/URL:    %d\n", *runs)
	fmt.Printf("Max scrolls: %d (%s)\n", *maxScrolls, *metric)
	fmt.Printf("Output:      %s\n", *output)
	fmt.Println()

	// Quick connectivity check, including the remote browser.
	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		RunsPerURL: *runs,
		MaxScrolls: *maxScrolls,
		Metric:     *metric,
	}

	for _, f := range testFeeds {
		fmt.Printf("Benchmarking [%s] %s ...\n", f.Label, f.URL)
		ur := urlResult{URL: f.URL, Label: f.Label}

		req := &models.ScrapeRequest{
			URL:              f.URL,
			MaxScrolls:       *maxScrolls,
			Metric:           *metric,
			ItemSelector:     f.Item,
			LoadMoreSelector: f.LoadMore,
			DedupeItems:      true,
		}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkFeed(req, i)
			if rr.Success {
				fmt.Printf("%-9s %2d scrolls  %4d items  %dms\n", rr.Outcome, rr.Attempts, rr.Items, rr.TotalMs)
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			ur.Runs = append(ur.Runs, rr)
		}

		ur.Averages = computeAverages(ur.Runs)
		report.Results = append(report.Results, ur)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health?check_browser=true")
	if err != nil {
		return fmt.Errorf("cannot reach API at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	var health models.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}
	if health.Browser != "reachable" {
		return fmt.Errorf("remote browser %s is %s", health.RemoteURL, health.Browser)
	}
	return nil
}

func benchmarkFeed(sr *models.ScrapeRequest, run int) runResult {
	rr := runResult{Run: run}

	bodyBytes, err := json.Marshal(sr)
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/scrape", bytes.NewReader(bodyBytes))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	var out models.ScrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	rr.Success = out.Success
	rr.TotalMs = out.Timing.TotalMs
	rr.NavigationMs = out.Timing.NavigationMs
	rr.ConvergenceMs = out.Timing.ConvergenceMs
	rr.Outcome = out.Convergence.Outcome
	rr.Attempts = out.Convergence.Attempts
	rr.FinalMetric = out.Convergence.FinalMetric
	rr.Extraction = out.Convergence.Extraction
	rr.Items = len(out.Items)
	rr.ContentLength = len(out.Content)

	if out.Error != nil {
		rr.Error = out.Error.Code + ": " + out.Error.Message
	}

	return rr
}

func computeAverages(runs []runResult) *urlAverages {
	var successCount int
	var avg urlAverages

	for _, r := range runs {
		if !r.Success {
			continue
		}
		successCount++
		avg.TotalMs += float64(r.TotalMs)
		avg.ConvergenceMs += float64(r.ConvergenceMs)
		avg.Attempts += float64(r.Attempts)
		avg.Items += float64(r.Items)
		avg.ContentLength += float64(r.ContentLength)
	}

	if successCount == 0 {
		return nil
	}

	n := float64(successCount)
	avg.TotalMs /= n
	avg.ConvergenceMs /= n
	avg.Attempts /= n
	avg.Items /= n
	avg.ContentLength /= n
	return &avg
}

func printTable(results []urlResult) {
	fmt.Println(strings.Repeat("─", 95))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "URL\tOutcome\tAvg Scrolls\tAvg Items\tAvg Latency\tContent Len\n")
	fmt.Fprintf(w, "───\t───────\t───────────\t─────────\t───────────\t───────────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t-\t-\n", truncateURL(r.URL, 40))
			continue
		}

		fmt.Fprintf(w, "%s\t%s\t%.1f\t%.0f\t%dms\t%s\n",
			truncateURL(r.URL, 40),
			dominantOutcome(r.Runs),
			r.Averages.Attempts,
			r.Averages.Items,
			int64(r.Averages.TotalMs),
			formatInt(int(r.Averages.ContentLength)),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 95))
}

func dominantOutcome(runs []runResult) string {
	counts := map[string]int{}
	for _, r := range runs {
		if r.Success {
			counts[r.Outcome]++
		}
	}
	best, bestCount := "", 0
	for outcome, count := range counts {
		if count > bestCount {
			best = outcome
			bestCount = count
		}
	}
	return best
}

func truncateURL(u string, max int) string {
	if len(u) <= max {
		return u
	}
	return u[:max-3] + "..."
}

func formatInt(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var result []byte
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	return string(result)
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
