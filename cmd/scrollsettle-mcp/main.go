package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/scrollsettle/models"
)

// clientTimeout covers the longest job the API accepts plus navigation.
const clientTimeout = 15 * time.Minute

func main() {
	apiURL := os.Getenv("SCROLLSETTLE_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("SCROLLSETTLE_API_KEY")

	s := server.NewMCPServer(
		"scrollsettle",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(scrollScrapeTool(), handleScrollScrape(strings.TrimRight(apiURL, "/"), apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func scrollScrapeTool() mcp.Tool {
	return mcp.NewTool("scroll_scrape",
		mcp.WithDescription("Load an infinite-scroll page in a remote browser, keep scrolling until no new content appears, and return the fully loaded document. Optionally extracts repeated items (posts, products, results) with CSS selectors."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to load"),
		),
		mcp.WithNumber("max_scrolls",
			mcp.Description("Maximum number of scroll attempts (server default when omitted)"),
			mcp.Min(1),
			mcp.Max(200),
		),
		mcp.WithNumber("scroll_delay_ms",
			mcp.Description("How long to watch the page after each scroll, in milliseconds"),
		),
		mcp.WithNumber("idle_stable_ms",
			mcp.Description("How long the page must stop growing before it counts as fully loaded, in milliseconds"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Overall deadline in seconds"),
		),
		mcp.WithString("metric",
			mcp.Description("Growth signal: 'nodes' (element count of the scroll container) or 'height' (scroll height)"),
			mcp.Enum("nodes", "height"),
		),
		mcp.WithString("load_more_selector",
			mcp.Description("CSS selector of a 'load more' button to click before every scroll"),
		),
		mcp.WithString("item_selector",
			mcp.Description("CSS selector matching one repeated item; the result lists every matched item"),
		),
		mcp.WithBoolean("dedupe_items",
			mcp.Description("Drop items repeated by virtualised lists"),
		),
		mcp.WithString("output_format",
			mcp.Description("Content format: 'markdown' (default here) or 'html'"),
			mcp.Enum("markdown", "html"),
		),
		mcp.WithBoolean("include_links",
			mcp.Description("Also list every absolute link in the final document"),
		),
	)
}

// buildRequest maps tool arguments onto the API request. Numeric arguments
// left at zero fall back to the server's defaults.
func buildRequest(request mcp.CallToolRequest) (*models.ScrapeRequest, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return nil, fmt.Errorf("url is required")
	}
	return &models.ScrapeRequest{
		URL:              url,
		MaxScrolls:       request.GetInt("max_scrolls", 0),
		ScrollDelayMs:    request.GetInt("scroll_delay_ms", 0),
		IdleStableMs:     request.GetInt("idle_stable_ms", 0),
		Timeout:          request.GetInt("timeout", 0),
		Metric:           request.GetString("metric", ""),
		LoadMoreSelector: request.GetString("load_more_selector", ""),
		ItemSelector:     request.GetString("item_selector", ""),
		DedupeItems:      request.GetBool("dedupe_items", false),
		OutputFormat:     request.GetString("output_format", "markdown"),
		IncludeLinks:     request.GetBool("include_links", false),
	}, nil
}

// apiPost sends a POST request to the API and returns the response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func handleScrollScrape(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: clientTimeout}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload, err := buildRequest(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/scrape", payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp models.ScrapeResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if !resp.Success {
			errMsg := "scrape failed"
			if resp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		return mcp.NewToolResultText(formatResult(&resp)), nil
	}
}

// formatResult renders a response as a metadata header, the items or the
// content, and the links.
func formatResult(resp *models.ScrapeResponse) string {
	var sb strings.Builder

	cv := resp.Convergence
	fmt.Fprintf(&sb, "Title: %s\nSource: %s\n", resp.Metadata.Title, resp.Metadata.SourceURL)
	fmt.Fprintf(&sb, "Convergence: %s after %d scrolls (%s=%d, extraction=%s)\n",
		cv.Outcome, cv.Attempts, cv.Metric, cv.FinalMetric, cv.Extraction)
	if !cv.Converged {
		sb.WriteString("Warning: the page may not be fully loaded.\n")
	}
	sb.WriteString("\n")

	if len(resp.Items) > 0 {
		fmt.Fprintf(&sb, "Items (%d):\n", len(resp.Items))
		for i, it := range resp.Items {
			fmt.Fprintf(&sb, "%d. %s", i+1, it.Title)
			if it.Link != "" {
				fmt.Fprintf(&sb, " <%s>", it.Link)
			}
			sb.WriteString("\n")
		}
	} else {
		sb.WriteString(resp.Content)
		sb.WriteString("\n")
	}

	if len(resp.Links) > 0 {
		fmt.Fprintf(&sb, "\nLinks (%d):\n", len(resp.Links))
		for _, l := range resp.Links {
			sb.WriteString(l.Href + "\n")
		}
	}

	return sb.String()
}
