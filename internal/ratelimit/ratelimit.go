// Package ratelimit implements the greedy token bucket rate limiter (C4).
// Unlike the in-process atomic-CAS bucket this is grounded on, bucket state
// must live in the coordination store so every replica shares one bucket
// per identity+route; the refill-and-consume arithmetic is therefore
// evaluated as a single Lua script so it stays atomic across replicas.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Policy describes one rate-limit bucket: up to capacity tokens, refilling
// at capacity/window tokens per second.
type Policy struct {
	Capacity int
	Window   time.Duration
}

// Unlimited is the sentinel policy for routes that bypass rate limiting
// entirely (e.g. /actuator/*).
var Unlimited = Policy{Capacity: 0, Window: 0}

type rule struct {
	pattern *regexp.Regexp
	class   string
	policy  Policy
}

// Table is the ordered, most-specific-match-first policy table (§4.4).
type Table struct {
	rules []rule
}

// DefaultTable builds the policy table from spec.md §4.4.
func DefaultTable() *Table {
	return &Table{rules: []rule{
		{pattern: regexp.MustCompile(`^POST /auth/login$`), class: "auth-login", policy: Policy{Capacity: 5, Window: time.Minute}},
		{pattern: regexp.MustCompile(`^GET /cards\?query=.+`), class: "cards-search", policy: Policy{Capacity: 20, Window: time.Minute}},
		{pattern: regexp.MustCompile(`^(POST|PUT|PATCH|DELETE) /cards/.*`), class: "cards-write", policy: Policy{Capacity: 30, Window: time.Minute}},
		{pattern: regexp.MustCompile(`^\S+ /actuator/.*`), class: "actuator", policy: Unlimited},
		{pattern: regexp.MustCompile(`.*`), class: "default", policy: Policy{Capacity: 100, Window: time.Minute}},
	}}
}

// Match returns the policy and endpoint class for method+requestURI, most
// specific rule first. requestURI is the path as matched against the
// mounted router (no "/api" prefix — see NormalizePath/Allow callers),
// optionally followed by "?"+rawQuery so query-qualified rules (e.g. the
// card-search class) are reachable.
func (t *Table) Match(method, requestURI string) (Policy, string) {
	path := requestURI
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	normalized := NormalizePath(path)

	candidates := []string{
		method + " " + requestURI,
		method + " " + path,
		method + " " + normalized,
	}
	for _, r := range t.rules {
		for _, c := range candidates {
			if r.pattern.MatchString(c) {
				return r.policy, r.class
			}
		}
	}
	return Policy{Capacity: 100, Window: time.Minute}, "default"
}

var resourceSegment = regexp.MustCompile(`^(cards|decks|archetypes)/.+`)

// NormalizePath collapses /{cards,decks,archetypes}/<x> to /…/*.
func NormalizePath(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if resourceSegment.MatchString(trimmed) {
		parts := strings.SplitN(trimmed, "/", 2)
		return "/" + parts[0] + "/*"
	}
	return path
}

// Identity extracts the rate-limit identity for a request: authenticated
// username if present, else the first hop of X-Forwarded-For, else the
// peer address.
func Identity(username string, r *http.Request) string {
	if username != "" {
		return username
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return r.RemoteAddr
}

// tokenBucketScript atomically refills and conditionally consumes one
// token. KEYS[1] is the bucket's hash key; ARGV: capacity, refill tokens
// per second, current unix time (seconds, float), ttl seconds.
// Returns 1 if the request is allowed, 0 if it's rejected.
const tokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1])
local last = tonumber(state[2])

if tokens == nil then
  tokens = capacity
  last = now
end

local elapsed = math.max(0, now - last)
tokens = math.min(capacity, tokens + elapsed * refill_rate)

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HMSET', key, 'tokens', tokens, 'ts', now)
redis.call('EXPIRE', key, ttl)

return allowed
`

// Limiter evaluates the token-bucket script against a shared Redis client.
type Limiter struct {
	rdb   *redis.Client
	table *Table
	script *redis.Script
}

// New returns a Limiter using table as the policy table.
func New(rdb *redis.Client, table *Table) *Limiter {
	return &Limiter{rdb: rdb, table: table, script: redis.NewScript(tokenBucketScript)}
}

// Allow reports whether a request for method+requestURI by identity should
// proceed. requestURI must already have the router's mount prefix (e.g.
// "/api") stripped — DefaultTable's patterns are anchored to the
// unprefixed form from spec.md §4.4 — and may carry a "?"+query suffix so
// query-qualified rules match. On a coordination store failure it fails
// open (returns true, documented risk per §4.4/§9).
func (l *Limiter) Allow(ctx context.Context, identity, method, requestURI string) (bool, string, error) {
	policy, class := l.table.Match(method, requestURI)
	if policy.Capacity == 0 {
		return true, class, nil
	}

	path := requestURI
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	key := fmt.Sprintf("rate_limit:%s:%s", identity, NormalizePath(path))
	refillRate := float64(policy.Capacity) / policy.Window.Seconds()
	ttl := int(policy.Window.Seconds()) * 2
	if ttl < 1 {
		ttl = 1
	}

	now := float64(time.Now().UnixNano()) / 1e9
	result, err := l.script.Run(ctx, l.rdb, []string{key}, policy.Capacity, refillRate, now, ttl).Int()
	if err != nil {
		return true, class, nil
	}
	return result == 1, class, nil
}
