package gateway

import (
	"net"
	"sync"
	"time"
)

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxHosts = 10000
)

// authLimiter counts failed handshakes per remote host over a sliding window.
type authLimiter struct {
	mu       sync.Mutex
	now      func() time.Time
	failures map[string][]time.Time
}

func newAuthLimiter() *authLimiter {
	return &authLimiter{now: time.Now, failures: make(map[string][]time.Time)}
}

func hostOf(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || host == "" {
		return remoteAddr
	}
	return host
}

// allow reports whether remoteAddr may attempt another handshake.
func (l *authLimiter) allow(remoteAddr string) bool {
	host := hostOf(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()
	recent := l.pruneLocked(host)
	return len(recent) < authRateMaxFails
}

func (l *authLimiter) recordFailure(remoteAddr string) {
	host := hostOf(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, tracked := l.failures[host]; !tracked && len(l.failures) >= authRateMaxHosts {
		l.evictOldestLocked()
	}
	l.failures[host] = append(l.failures[host], l.now())
}

// sweep drops hosts with no failure inside the window.
func (l *authLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for host := range l.failures {
		l.pruneLocked(host)
	}
}

// sweepEvery runs sweep until done is closed.
func (l *authLimiter) sweepEvery(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *authLimiter) pruneLocked(host string) []time.Time {
	cutoff := l.now().Add(-authRateWindow)
	times := l.failures[host]
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.failures, host)
		return nil
	}
	l.failures[host] = kept
	return kept
}

func (l *authLimiter) evictOldestLocked() {
	var (
		oldest     string
		oldestTime time.Time
	)
	for host, times := range l.failures {
		if len(times) > 0 && (oldest == "" || times[0].Before(oldestTime)) {
			oldest, oldestTime = host, times[0]
		}
	}
	if oldest != "" {
		delete(l.failures, oldest)
	}
}
