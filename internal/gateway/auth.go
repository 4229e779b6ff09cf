package gateway

import (
	"crypto/subtle"
	"net"
	"os"
	"sync"
	"time"

	"github.com/soyeahso/roster/internal/clock"
	"github.com/soyeahso/roster/internal/config"
)

// AuthResult is the outcome of a connect handshake's credential check.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func denied(reason string) AuthResult { return AuthResult{Reason: reason} }

// Credentials are the secrets the gateway expects from connecting clients.
type Credentials struct {
	Mode     string
	Token    string
	Password string
}

// CredentialsFrom fills unset secrets from ROSTER_GATEWAY_TOKEN and
// ROSTER_GATEWAY_PASSWORD. Without an explicit mode, a configured password
// selects password mode and anything else selects token mode.
func CredentialsFrom(cfg config.GatewayAuth) Credentials {
	c := Credentials{
		Mode:     cfg.Mode,
		Token:    firstNonEmpty(cfg.Token, os.Getenv("ROSTER_GATEWAY_TOKEN")),
		Password: firstNonEmpty(cfg.Password, os.Getenv("ROSTER_GATEWAY_PASSWORD")),
	}
	if c.Mode == "" {
		c.Mode = "token"
		if c.Password != "" {
			c.Mode = "password"
		}
	}
	return c
}

// Check compares what a client presented with the expected secret for the
// active mode.
func (c Credentials) Check(presented *ConnectAuth) AuthResult {
	if presented == nil {
		return denied("no credentials provided")
	}

	var want, got string
	switch c.Mode {
	case "token":
		want, got = c.Token, presented.Token
	case "password":
		want, got = c.Password, presented.Password
	default:
		return denied("unknown auth mode: " + c.Mode)
	}

	switch {
	case want == "":
		return denied("server " + c.Mode + " not configured")
	case got == "":
		return denied(c.Mode + " required")
	case !secretsEqual(got, want):
		return denied(c.Mode + "_mismatch")
	}
	return AuthResult{OK: true, Method: c.Mode}
}

// secretsEqual compares in constant time, including for unequal lengths.
func secretsEqual(a, b string) bool {
	sameLen := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	sameBytes := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(sameLen, sameBytes, 0) == 1
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

const (
	lockoutWindow   = 5 * time.Minute
	lockoutFailures = 10
	lockoutMaxHosts = 10000
)

// lockout refuses new handshakes from a host after too many failed ones
// within a sliding window. Expired failures are pruned on access.
type lockout struct {
	clk clock.Clock

	mu    sync.Mutex
	hosts map[string][]time.Time
}

func newLockout(clk clock.Clock) *lockout {
	if clk == nil {
		clk = clock.Real()
	}
	return &lockout{clk: clk, hosts: make(map[string][]time.Time)}
}

// blocked reports whether remoteAddr's host has hit the failure limit.
func (l *lockout) blocked(remoteAddr string) bool {
	host := hostOf(remoteAddr)
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recent(host, l.clk.Now())) >= lockoutFailures
}

// fail records a failed handshake from remoteAddr.
func (l *lockout) fail(remoteAddr string) {
	host := hostOf(remoteAddr)
	now := l.clk.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, known := l.hosts[host]; !known && len(l.hosts) >= lockoutMaxHosts {
		l.evict(now)
	}
	l.hosts[host] = append(l.recent(host, now), now)
}

// tracked returns the number of hosts with failures on record.
func (l *lockout) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hosts)
}

// recent drops host's failures older than the window and returns the rest.
// Caller holds l.mu.
func (l *lockout) recent(host string, now time.Time) []time.Time {
	cutoff := now.Add(-lockoutWindow)
	kept := l.hosts[host][:0]
	for _, t := range l.hosts[host] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.hosts, host)
		return nil
	}
	l.hosts[host] = kept
	return kept
}

// evict makes room for one more host: first by pruning expired entries,
// then by dropping the host with the oldest failure. Caller holds l.mu.
func (l *lockout) evict(now time.Time) {
	for host := range l.hosts {
		l.recent(host, now)
	}
	if len(l.hosts) < lockoutMaxHosts {
		return
	}
	var oldest string
	var oldestAt time.Time
	for host, times := range l.hosts {
		if oldest == "" || times[0].Before(oldestAt) {
			oldest, oldestAt = host, times[0]
		}
	}
	delete(l.hosts, oldest)
}

func hostOf(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
		return host
	}
	return remoteAddr
}
