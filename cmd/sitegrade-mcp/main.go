// Command sitegrade-mcp exposes the sitegrade API as MCP tools over stdio.
package main

import (
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
)

// errorDetail mirrors the sitegrade API error model.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type quotaStatus struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"resetAt"`
}

type subScore struct {
	Value       int      `json:"value"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

type analysisResult struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Scores struct {
		SEO     int `json:"seo"`
		AI      int `json:"ai"`
		Overall int `json:"overall"`
	} `json:"scores"`
	Technical      subScore `json:"technical"`
	OnPage         subScore `json:"onPage"`
	AIOptimization struct {
		subScore
		Readability       int `json:"readability"`
		Structure         int `json:"structure"`
		CitationPotential int `json:"citationPotential"`
	} `json:"aiOptimization"`
	TopRecommendations []string `json:"topRecommendations"`
}

// analyzeResponse mirrors the sitegrade analyze response.
type analyzeResponse struct {
	Success bool            `json:"success"`
	Result  *analysisResult `json:"result"`
	Quota   *quotaStatus    `json:"quota"`
	Error   *errorDetail    `json:"error"`
}

// quotaResponse mirrors the sitegrade quota response.
type quotaResponse struct {
	Identifier    string       `json:"identifier"`
	Authenticated bool         `json:"authenticated"`
	Quota         quotaStatus  `json:"quota"`
	Error         *errorDetail `json:"error"`
}

func main() {
	apiURL := os.Getenv("SITEGRADE_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	// Without a key the tools run as an anonymous caller with the daily limit.
	apiKey := os.Getenv("SITEGRADE_API_KEY")

	s := server.NewMCPServer(
		"sitegrade",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	analyzeTool := mcp.NewTool("analyze_website",
		mcp.WithDescription("Analyze a web page for SEO and AI readiness. Renders the page in a headless browser and returns an overall score, category scores, issues and the top recommendations."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The absolute http(s) URL of the page to analyze"),
		),
	)
	s.AddTool(analyzeTool, handleAnalyze(apiURL, apiKey))

	quotaTool := mcp.NewTool("get_quota",
		mcp.WithDescription("Report how many analyses remain today for the configured caller and when the allowance resets."),
	)
	s.AddTool(quotaTool, handleQuota(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiDo sends a request to the sitegrade API and returns the response body.
func apiDo(ctx context.Context, client *http.Client, method, endpoint, apiKey string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
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

func handleAnalyze(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		payload, err := json.Marshal(map[string]string{"url": url})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal request: %v", err)), nil
		}

		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/analyze", apiKey, strings.NewReader(string(payload)))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp analyzeResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if !resp.Success || resp.Result == nil {
			errMsg := "analysis failed"
			if resp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)
			}
			if resp.Quota != nil && !resp.Quota.Allowed {
				errMsg += fmt.Sprintf(" (resets at %s)", resp.Quota.ResetAt.Format(time.RFC3339))
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		return mcp.NewToolResultText(formatAnalysis(&resp)), nil
	}
}

func formatAnalysis(resp *analyzeResponse) string {
	r := resp.Result
	ai := r.AIOptimization
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analysis of %s\n", r.URL)
	fmt.Fprintf(&sb, "Overall: %d/100 (SEO %d, AI %d)\n\n", r.Scores.Overall, r.Scores.SEO, r.Scores.AI)
	fmt.Fprintf(&sb, "Technical:          %d\n", r.Technical.Value)
	fmt.Fprintf(&sb, "On-page:            %d\n", r.OnPage.Value)
	fmt.Fprintf(&sb, "AI optimization:    %d\n", ai.Value)
	fmt.Fprintf(&sb, "Readability:        %d\n", ai.Readability)
	fmt.Fprintf(&sb, "Structure:          %d\n", ai.Structure)
	fmt.Fprintf(&sb, "Citation potential: %d\n", ai.CitationPotential)

	writeList(&sb, "Technical issues", r.Technical.Issues)
	writeList(&sb, "On-page issues", r.OnPage.Issues)
	writeList(&sb, "AI issues", ai.Issues)
	writeList(&sb, "Top recommendations", r.TopRecommendations)

	if q := resp.Quota; q != nil && q.Limit >= 0 {
		fmt.Fprintf(&sb, "\n---\nFree analyses left today: %d of %d\n", max(0, q.Remaining-1), q.Limit)
	}
	fmt.Fprintf(&sb, "\nAnalysis ID: %s\n", r.ID)
	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n%s:\n", title)
	for i, item := range items {
		fmt.Fprintf(sb, "%d. %s\n", i+1, item)
	}
}

func handleQuota(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 10 * time.Second}

	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		respBody, err := apiDo(ctx, client, http.MethodGet, apiURL+"/api/v1/quota", apiKey, nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp quotaResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if resp.Error != nil {
			return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)), nil
		}

		if resp.Authenticated {
			return mcp.NewToolResultText("Signed in: analyses are unlimited."), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%d of %d free analyses left today. Resets at %s.",
			resp.Quota.Remaining, resp.Quota.Limit, resp.Quota.ResetAt.Format(time.RFC3339))), nil
	}
}
