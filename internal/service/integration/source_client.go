package integration

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/RubachokBoss/plagiarism-ledger/internal/models"
	"github.com/RubachokBoss/plagiarism-ledger/internal/service/analyzer"
	"github.com/rs/zerolog"
)

// SourceFinder looks for the original of a suspect document. A nil document
// with a nil error means nothing qualified; errors are reserved for
// connectivity failures.
type SourceFinder interface {
	FindSource(ctx context.Context, doc models.Document) (*models.Document, error)
}

type SourceFinderConfig struct {
	MinConfidence float64
	MaxCandidates int
	MaxBodyBytes  int64
	Timeout       time.Duration
	RetryCount    int
	RetryDelay    time.Duration
	Algorithm     analyzer.Algorithm
	// AllowPrivateHosts lets candidates resolve to loopback, private and
	// link-local addresses. Off outside of tests and closed networks.
	AllowPrivateHosts bool
}

type urlSourceFinder struct {
	engine analyzer.SimilarityEngine
	config SourceFinderConfig
	client *http.Client
	now    func() time.Time
	logger zerolog.Logger
}

var (
	urlPattern    = regexp.MustCompile(`https?://[^\s"'<>()\[\]{}]+`)
	scriptPattern = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	titlePattern  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	tagPattern    = regexp.MustCompile(`(?s)<[^>]*>`)
)

// ErrSourceUnreachable is returned when no candidate URL could be fetched.
var ErrSourceUnreachable = errors.New("no candidate source could be reached")

// errSourceGone marks a candidate that answered but has no usable page.
var errSourceGone = errors.New("source not available")

var errAddressBlocked = errors.New("address not allowed")

// NewURLSourceFinder builds a finder that fetches the URLs embedded in the
// suspect text and keeps the most similar page.
func NewURLSourceFinder(engine analyzer.SimilarityEngine, config SourceFinderConfig, logger zerolog.Logger) SourceFinder {
	if config.MaxCandidates <= 0 {
		config.MaxCandidates = 5
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 1 << 20
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !config.AllowPrivateHosts {
		dialer := &net.Dialer{
			Timeout:   config.Timeout,
			KeepAlive: 30 * time.Second,
			Control:   rejectPrivateAddress,
		}
		transport.DialContext = dialer.DialContext
		transport.Proxy = nil
	}

	return &urlSourceFinder{
		engine: engine,
		config: config,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		now:    time.Now,
		logger: logger,
	}
}

func (f *urlSourceFinder) FindSource(ctx context.Context, doc models.Document) (*models.Document, error) {
	candidates := ExtractURLs(doc.Text, f.config.MaxCandidates)
	if len(candidates) == 0 {
		f.logger.Debug().Str("title", doc.Title).Msg("No candidate URLs in document")
		return nil, nil
	}

	suspect := urlPattern.ReplaceAllString(doc.Text, " ")

	var (
		best      *models.Document
		bestScore float64
		reached   int
		lastErr   error
	)

	for _, candidate := range candidates {
		page, err := f.fetch(ctx, candidate)
		if err != nil {
			if errors.Is(err, errSourceGone) {
				reached++
				continue
			}
			lastErr = err
			f.logger.Warn().Err(err).Str("url", candidate).Msg("Failed to fetch candidate source")
			continue
		}
		reached++

		text := PageText(page)
		score := f.engine.ScoreTexts(suspect, text, f.config.Algorithm)

		f.logger.Debug().
			Str("url", candidate).
			Float64("score", score).
			Msg("Scored candidate source")

		if score >= f.config.MinConfidence && (best == nil || score > bestScore) {
			found := models.NewDocument(pageTitle(page, candidate), hostOf(candidate), f.now().UTC().Format("2006-01-02"), text).
				WithSource(candidate)
			best = &found
			bestScore = score
		}
	}

	if reached == 0 && lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnreachable, lastErr)
	}

	if best != nil {
		f.logger.Info().
			Str("title", doc.Title).
			Str("source_url", best.SourceURL).
			Float64("confidence", bestScore).
			Msg("Source discovered")
	}

	return best, nil
}

func (f *urlSourceFinder) fetch(ctx context.Context, target string) (string, error) {
	var lastErr error

	for i := 0; i <= f.config.RetryCount; i++ {
		if i > 0 {
			f.logger.Warn().Int("attempt", i).Str("url", target).Msg("Retrying source fetch")
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(f.config.RetryDelay * time.Duration(i)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", errSourceGone)
		}
		req.Header.Set("User-Agent", "plagiarism-ledger/1.0 (source-finder)")

		resp, err := f.client.Do(req)
		if err != nil {
			if errors.Is(err, errAddressBlocked) {
				return "", fmt.Errorf("%w: %w", errSourceGone, err)
			}
			lastErr = fmt.Errorf("failed to fetch source: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
			resp.Body.Close()
			if err != nil {
				lastErr = fmt.Errorf("failed to read response body: %w", err)
				continue
			}
			return string(body), nil
		}

		resp.Body.Close()
		if resp.StatusCode < http.StatusInternalServerError {
			return "", fmt.Errorf("source returned status %d: %w", resp.StatusCode, errSourceGone)
		}
		lastErr = fmt.Errorf("source returned status %d", resp.StatusCode)
	}

	return "", fmt.Errorf("failed to fetch source after %d attempts: %w", f.config.RetryCount+1, lastErr)
}

// rejectPrivateAddress runs after DNS resolution, so a public name pointing
// at an internal address is refused as well.
func rejectPrivateAddress(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", errAddressBlocked, address)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %s", errAddressBlocked, address)
	}
	if !publicAddress(ip) {
		return fmt.Errorf("%w: %s", errAddressBlocked, ip)
	}
	return nil
}

func publicAddress(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsGlobalUnicast() && !ip.IsPrivate() && !ip.IsLoopback() && !cgnat.Contains(ip)
}

var cgnat = netip.MustParsePrefix("100.64.0.0/10")

// ExtractURLs returns up to limit distinct http(s) URLs in order of first
// appearance. Trailing sentence punctuation is not part of the URL.
func ExtractURLs(text string, limit int) []string {
	seen := make(map[string]struct{})
	var urls []string

	for _, match := range urlPattern.FindAllString(text, -1) {
		candidate := strings.TrimRight(match, ".,;:!?")
		if _, err := url.ParseRequestURI(candidate); err != nil {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		urls = append(urls, candidate)
		if limit > 0 && len(urls) == limit {
			break
		}
	}
	return urls
}

// PageText strips scripts, styles and tags and collapses whitespace.
func PageText(page string) string {
	text := scriptPattern.ReplaceAllString(page, " ")
	text = titlePattern.ReplaceAllString(text, " ")
	text = tagPattern.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}

func pageTitle(page, fallback string) string {
	if m := titlePattern.FindStringSubmatch(page); m != nil {
		if title := strings.Join(strings.Fields(html.UnescapeString(m[1])), " "); title != "" {
			return title
		}
	}
	return fallback
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "web"
	}
	return u.Host
}
