package reader

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"pressureflow/config"
)

// NewHTTPClient builds a pooled client. A LocalIP in the pool config binds
// outbound connections to that address.
func NewHTTPClient(pool config.ConnectionPoolConfig, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        pool.MaxIdleConns,
		MaxIdleConnsPerHost: pool.MaxIdleConns,
		MaxConnsPerHost:     pool.MaxConnsPerHost,
		IdleConnTimeout:     pool.IdleConnTimeout,
		DisableCompression:  false,
	}
	if dialer := localDialer(pool.LocalIP); dialer != nil {
		transport.DialContext = dialer.DialContext
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// NewWebsocketDialer returns a gorilla dialer honouring the pool's LocalIP.
func NewWebsocketDialer(pool config.ConnectionPoolConfig, timeout time.Duration) *websocket.Dialer {
	d := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}
	if dialer := localDialer(pool.LocalIP); dialer != nil {
		d.NetDialContext = dialer.DialContext
	}
	return d
}

func localDialer(localIP string) *net.Dialer {
	if localIP == "" {
		return nil
	}
	ip := net.ParseIP(localIP)
	if ip == nil {
		return nil
	}
	return &net.Dialer{LocalAddr: &net.TCPAddr{IP: ip}}
}

// BaseURL strips the path from a configured endpoint, leaving scheme://host.
// SDK clients append their own versioned paths.
func BaseURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("url %q has no scheme or host", raw)
	}
	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host), nil
}

// NewLimiter returns a request limiter, or nil when rate limiting is off.
func NewLimiter(cfg config.RateLimitConfig) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.BurstSize
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

// PollInterval converts the configured milliseconds, falling back to 3s.
func PollInterval(ms int) time.Duration {
	if ms <= 0 {
		return 3 * time.Second
	}
	return time.Duration(ms) * time.Millisecond
}
