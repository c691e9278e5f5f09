// ratelimit.go — ограничение частоты попыток входа по адресу клиента.
package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var loginRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ps_login_rate_limited_total",
	Help: "Количество попыток входа, отклонённых ограничением частоты.",
})

const (
	// maxTrackedClients — максимум адресов с отдельным лимитом.
	maxTrackedClients = 10000
	// limiterIdleTTL — время хранения лимита адреса без попыток входа.
	limiterIdleTTL = 10 * time.Minute
)

// LoginLimiter — token bucket на каждый адрес клиента.
type LoginLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// NewLoginLimiter создаёт ограничение perMinute попыток в минуту с запасом burst.
func NewLoginLimiter(perMinute, burst int) *LoginLimiter {
	if burst < 1 {
		burst = 1
	}
	return &LoginLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, limiterIdleTTL),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
	}
}

// Allow расходует попытку адреса ip и сообщает, разрешена ли она.
func (l *LoginLimiter) Allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.limiters.Get(ip)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
	}
	// Add продлевает хранение адреса
	l.limiters.Add(ip, lim)
	l.mu.Unlock()

	if lim.Allow() {
		return true
	}
	loginRejectedTotal.Inc()
	return false
}

// ClientIP возвращает адрес клиента: первый адрес X-Forwarded-For
// (от reverse proxy), иначе хост из RemoteAddr.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
