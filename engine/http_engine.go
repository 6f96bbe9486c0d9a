package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	tls "github.com/refraction-networking/utls"
	"github.com/use-agent/sitegrade/models"
	"golang.org/x/net/html"
)

// maxBody caps the bytes read from a response.
const maxBody = 10 << 20

// HTTPEngine is a lightweight engine that fetches the raw HTML without
// running JavaScript. It is the fastest option and scores static sites
// exactly as a crawler sees them.
type HTTPEngine struct {
	client  *http.Client
	timeout time.Duration
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// NewHTTPEngine creates an HTTPEngine with a Chrome-like TLS fingerprint.
// timeout bounds each fetch; zero means the caller's context alone.
func NewHTTPEngine(timeout time.Duration) *HTTPEngine {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("http_engine: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	return newHTTPEngine(&http.Client{Transport: transport}, timeout)
}

func newHTTPEngine(client *http.Client, timeout time.Duration) *HTTPEngine {
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("too many redirects")
		}
		return nil
	}
	return &HTTPEngine{client: client, timeout: timeout}
}

func (e *HTTPEngine) Name() string { return ModeHTTP }

// Render fetches req.URL. Any HTML response is returned with its status
// code, including 4xx and 5xx; non-HTML responses are NAVIGATION_FAILED.
func (e *HTTPEngine) Render(ctx context.Context, req *models.RenderRequest) (*models.RenderedPage, error) {
	if _, err := models.ValidateURL(req.URL); err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if e.timeout > 0 && (timeout <= 0 || e.timeout < timeout) {
		timeout = e.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSpace(req.URL), nil)
	if err != nil {
		return nil, models.NewAnalysisError(models.ErrCodeInvalidURL, "the URL could not be requested", err)
	}

	// Simulate browser-like headers.
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36")
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "identity")

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fetchError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fetchError(ctx, err)
	}
	loadTime := time.Since(start)

	if ct := resp.Header.Get("Content-Type"); !isHTMLContentType(ct) {
		return nil, models.NewAnalysisError(models.ErrCodeNavigation,
			fmt.Sprintf("the URL returned %q instead of an HTML page", ct), nil)
	}

	bodyStr := string(body)
	return &models.RenderedPage{
		URL:        req.URL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		HTML:       bodyStr,
		Title:      extractTitle(bodyStr),
		LoadTime:   loadTime,
		PageSize:   int64(len(body)),
		Engine:     e.Name(),
	}, nil
}

// fetchError maps transport errors onto analysis error codes.
func fetchError(ctx context.Context, err error) *models.AnalysisError {
	var dnsErr *net.DNSError
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return models.NewAnalysisError(models.ErrCodeCancelled, "the analysis was cancelled", err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return models.NewAnalysisError(models.ErrCodeTimeout, "the page took too long to load", err)
	case errors.As(err, &dnsErr):
		return models.NewAnalysisError(models.ErrCodeDNSFailure, "the domain name could not be resolved", err)
	default:
		return models.NewAnalysisError(models.ErrCodeNavigation, "the page could not be fetched", err)
	}
}

// isHTMLContentType returns true if the content-type header looks like HTML.
// An absent header is treated as HTML.
func isHTMLContentType(ct string) bool {
	if ct == "" {
		return true
	}
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

// extractTitle uses the Go HTML tokenizer to find the first <title> element.
func extractTitle(htmlStr string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlStr))
	inTitle := false
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}
