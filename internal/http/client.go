// Package http builds the proxy-aware HTTP client the gateway runs on.
package http

import (
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"golang.org/x/net/http/httpproxy"
	"golang.org/x/net/http2"

	"github.com/datumcloud/datum-sync/internal/config"
	"github.com/datumcloud/datum-sync/internal/constants"
)

// ConfigureHTTPClient configures an HTTP client with proxy settings.
func ConfigureHTTPClient(cfg *config.Config) (*nethttp.Client, error) {
	transport := &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
	}

	mode := "no-proxy"
	if cfg != nil {
		mode = strings.ToLower(cfg.Proxy.Mode)
	}

	switch mode {
	case "no-proxy", "":
		transport.Proxy = nil

	case "system":
		transport.Proxy = nethttp.ProxyFromEnvironment

	case "ntlm":
		// Fall back to no-proxy when the saved config is incomplete so
		// the caller can still start and reconfigure.
		if cfg.Proxy.Host == "" {
			transport.Proxy = nil
			break
		}
		transport.Proxy = proxyFunc(buildProxyURL(&cfg.Proxy))
		return &nethttp.Client{
			Transport: ntlmssp.Negotiator{
				RoundTripper: transport,
			},
			Timeout: 300 * time.Second,
		}, nil

	case "basic":
		if cfg.Proxy.Host == "" {
			transport.Proxy = nil
			break
		}
		transport.Proxy = proxyFunc(buildProxyURL(&cfg.Proxy))

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", mode)
	}

	// HTTP/2 where the transport allows it; proxies are already special
	// cased above.
	transport.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(transport)

	return &nethttp.Client{
		Transport: transport,
		Timeout:   300 * time.Second,
	}, nil
}

// buildProxyURL constructs a proxy URL from config.
func buildProxyURL(p *config.ProxyConfig) *url.URL {
	port := p.Port
	if port == 0 {
		port = 8080
	}

	proxyURL := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", p.Host, port),
	}

	// Only embed credentials when both halves are present; an empty
	// password in the URL breaks some proxies.
	if p.Username != "" && p.Password != "" {
		proxyURL.User = url.UserPassword(p.Username, p.Password)
	}

	return proxyURL
}

// proxyFunc resolves the proxy per-request via httpproxy so NO_PROXY
// style bypasses from the environment still apply.
func proxyFunc(proxyURL *url.URL) func(*nethttp.Request) (*url.URL, error) {
	envCfg := httpproxy.FromEnvironment()
	envCfg.HTTPProxy = proxyURL.String()
	envCfg.HTTPSProxy = proxyURL.String()
	fn := envCfg.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		return fn(req.URL)
	}
}
