package analyzer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/pagescope/pagescope/internal/analysis"
)

// Security checks transport security and protective response headers.
type Security struct {
	fetcher    *Fetcher
	tlsTimeout time.Duration
}

// NewSecurity constructs the security analyzer. tlsTimeout bounds the
// certificate handshake probe against port 443.
func NewSecurity(fetcher *Fetcher, tlsTimeout time.Duration) *Security {
	if tlsTimeout <= 0 {
		tlsTimeout = 5 * time.Second
	}
	return &Security{fetcher: fetcher, tlsTimeout: tlsTimeout}
}

// Analyze never fails: unreachable hosts or handshake errors show up as
// false booleans plus a recommendation, not as an error.
func (a *Security) Analyze(ctx context.Context, rawURL string) (analysis.SecurityData, []analysis.Recommendation) {
	var data analysis.SecurityData
	var recs []analysis.Recommendation

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return data, []analysis.Recommendation{{
			Message:  fmt.Sprintf("security analysis failed: %v", err),
			Category: analysis.CategorySecurity,
		}}
	}

	data.UsesHTTPS = parsed.Scheme == "https"
	if !data.UsesHTTPS {
		recs = append(recs, analysis.Recommendation{
			Message:  "page is not served over HTTPS",
			Category: analysis.CategorySecurity,
		})
	}

	if err := a.checkCertificate(parsed.Hostname()); err == nil {
		data.ValidSSLCertificate = true
	} else {
		recs = append(recs, analysis.Recommendation{
			Message:  fmt.Sprintf("SSL certificate check failed: %v", err),
			Category: analysis.CategorySecurity,
		})
	}

	page, err := a.fetcher.Get(ctx, rawURL)
	if err != nil {
		recs = append(recs, analysis.Recommendation{
			Message:  fmt.Sprintf("could not inspect response headers: %v", err),
			Category: analysis.CategorySecurity,
		})
		return data, recs
	}

	data.HSTSHeader = page.Header.Get("Strict-Transport-Security") != ""
	data.ContentTypeOptions = strings.EqualFold(page.Header.Get("X-Content-Type-Options"), "nosniff")
	data.FrameOptions = page.Header.Get("X-Frame-Options") != ""
	data.CSPHeader = page.Header.Get("Content-Security-Policy") != ""

	if !data.HSTSHeader {
		recs = append(recs, analysis.Recommendation{
			Message:  "missing Strict-Transport-Security header",
			Category: analysis.CategorySecurity,
		})
	}
	if !data.ContentTypeOptions {
		recs = append(recs, analysis.Recommendation{
			Message:  "missing X-Content-Type-Options: nosniff header",
			Category: analysis.CategorySecurity,
		})
	}
	if !data.FrameOptions {
		recs = append(recs, analysis.Recommendation{
			Message:  "missing X-Frame-Options header",
			Category: analysis.CategorySecurity,
		})
	}
	if !data.CSPHeader {
		recs = append(recs, analysis.Recommendation{
			Message:  "missing Content-Security-Policy header",
			Category: analysis.CategorySecurity,
		})
	}

	return data, recs
}

// checkCertificate completes a TLS handshake against host:443 so the
// standard chain and hostname verification run.
func (a *Security) checkCertificate(host string) error {
	if host == "" {
		return fmt.Errorf("no hostname")
	}
	dialer := &net.Dialer{Timeout: a.tlsTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", net.JoinHostPort(host, "443"), &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return err
	}
	return conn.Close()
}
