// Package session caches broker bearer tokens per credential set.
//
// A token is valid while now < expiry. An expired token is validated against
// the broker before falling back to a fresh login, and a background sweep
// revalidates every cached token on a fixed interval so most requests never
// pay for an authentication round trip.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidArgument is returned when no client key can be derived.
	ErrInvalidArgument = errors.New("clientId or userName must be provided")
	// ErrAuthFailure wraps any login rejection or login transport failure.
	ErrAuthFailure = errors.New("authentication failed")
)

// Authenticator is the broker side of the cache.
type Authenticator interface {
	LoginKey(ctx context.Context, userName, apiKey string) (string, error)
	Validate(ctx context.Context, token string) error
}

type record struct {
	token      string
	expiry     time.Time
	userName   string
	apiKey     string
	validating bool
}

// Status is a read-only view of one client session.
type Status struct {
	ClientKey       string     `json:"clientKey"`
	UserName        string     `json:"userName"`
	HasToken        bool       `json:"hasToken"`
	Valid           bool       `json:"valid"`
	Validating      bool       `json:"validating"`
	Expiry          *time.Time `json:"expiry,omitempty"`
	TimeUntilExpiry string     `json:"timeUntilExpiry"`
	TokenPreview    string     `json:"tokenPreview,omitempty"`
}

// Cache holds one session per client key. Build it once with NewCache and share the pointer.
type Cache struct {
	auth          Authenticator
	ttl           time.Duration
	sweepInterval time.Duration
	log           *logrus.Entry
	now           func() time.Time

	mu         sync.Mutex
	sessions   map[string]*record
	defaultKey string

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func NewCache(auth Authenticator, cfg Config, log *logrus.Entry) *Cache {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = cfg.TokenTTL / 2
	}

	return &Cache{
		auth:          auth,
		ttl:           cfg.TokenTTL,
		sweepInterval: cfg.SweepInterval,
		log:           log.WithField("component", "session_cache"),
		now:           time.Now,
		sessions:      make(map[string]*record),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// resolveLocked maps an optional client id to a key; empty means the default client.
func (c *Cache) resolveLocked(clientID string) string {
	if key := strings.TrimSpace(clientID); key != "" {
		return key
	}
	return c.defaultKey
}

// GetToken returns a usable bearer token for the credential set.
// A cached unexpired token is returned from memory without any broker call.
func (c *Cache) GetToken(ctx context.Context, userName, apiKey, clientID string) (string, error) {
	key := strings.TrimSpace(clientID)
	if key == "" {
		key = strings.TrimSpace(userName)
	}
	if key == "" {
		return "", ErrInvalidArgument
	}

	c.mu.Lock()
	c.defaultKey = key
	rec, ok := c.sessions[key]
	if !ok {
		rec = &record{}
		c.sessions[key] = rec
	}
	// credentials may have rotated since the record was created
	rec.userName = userName
	rec.apiKey = apiKey
	token, expiry := rec.token, rec.expiry
	now := c.now()
	c.mu.Unlock()

	if token != "" && now.Before(expiry) {
		return token, nil
	}

	if token != "" {
		if c.Validate(ctx, key) && c.extend(key, token) {
			c.log.WithField("client", key).Debug("expired token revalidated")
			return token, nil
		}
		c.log.WithField("client", key).Info("cached token rejected, re-authenticating")
	}

	return c.Authenticate(ctx, key, userName, apiKey)
}

// Authenticate logs in with the credentials and stores the token for clientKey.
func (c *Cache) Authenticate(ctx context.Context, clientKey, userName, apiKey string) (string, error) {
	key := strings.TrimSpace(clientKey)
	if key == "" {
		key = strings.TrimSpace(userName)
	}
	if key == "" {
		return "", ErrInvalidArgument
	}

	token, err := c.auth.LoginKey(ctx, userName, apiKey)
	if err != nil {
		c.log.WithField("client", key).WithError(err).Error("authentication failed")
		return "", fmt.Errorf("%w: client %s: %w", ErrAuthFailure, key, err)
	}
	if token == "" {
		return "", fmt.Errorf("%w: client %s: empty token", ErrAuthFailure, key)
	}

	c.mu.Lock()
	rec, ok := c.sessions[key]
	if !ok {
		rec = &record{}
		c.sessions[key] = rec
	}
	rec.userName = userName
	rec.apiKey = apiKey
	rec.token = token
	rec.expiry = c.now().Add(c.ttl)
	if c.defaultKey == "" {
		c.defaultKey = key
	}
	c.mu.Unlock()

	c.log.WithField("client", key).Info("authenticated")
	return token, nil
}

// Validate checks the cached token with the broker. It returns false without a
// network call when there is no token or a validation for the client is already
// in flight. Any failure clears the cached token.
func (c *Cache) Validate(ctx context.Context, clientID string) bool {
	c.mu.Lock()
	key := c.resolveLocked(clientID)
	rec, ok := c.sessions[key]
	if !ok || rec.token == "" || rec.validating {
		c.mu.Unlock()
		return false
	}
	rec.validating = true
	token := rec.token
	c.mu.Unlock()

	err := c.auth.Validate(ctx, token)

	c.mu.Lock()
	defer c.mu.Unlock()
	rec.validating = false
	if err != nil {
		if rec.token == token {
			rec.token = ""
			rec.expiry = time.Time{}
		}
		c.log.WithField("client", key).WithError(err).Warn("token validation failed")
		return false
	}
	return true
}

// extend pushes expiry a full TTL from now if the token is still the cached one.
func (c *Cache) extend(key, token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.sessions[key]
	if !ok || rec.token != token {
		return false
	}
	rec.expiry = c.now().Add(c.ttl)
	return true
}

// ForceRevalidate drops the cached token and logs in again with the stored credentials.
func (c *Cache) ForceRevalidate(ctx context.Context, clientID string) bool {
	c.mu.Lock()
	key := c.resolveLocked(clientID)
	rec, ok := c.sessions[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	rec.token = ""
	rec.expiry = time.Time{}
	userName, apiKey := rec.userName, rec.apiKey
	c.mu.Unlock()

	if _, err := c.Authenticate(ctx, key, userName, apiKey); err != nil {
		c.log.WithField("client", key).WithError(err).Warn("forced revalidation failed")
		return false
	}
	return true
}

// Clear removes one client's session, or every session when clientID is empty.
func (c *Cache) Clear(clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := strings.TrimSpace(clientID)
	if key == "" {
		c.sessions = make(map[string]*record)
		c.defaultKey = ""
		return
	}

	delete(c.sessions, key)
	if c.defaultKey == key {
		c.defaultKey = ""
	}
}

// IsValid reports whether the client holds an unexpired token.
func (c *Cache) IsValid(clientID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.sessions[c.resolveLocked(clientID)]
	return ok && rec.token != "" && c.now().Before(rec.expiry)
}

// Expiry returns the token expiry, nil when none is cached.
func (c *Cache) Expiry(clientID string) *time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.sessions[c.resolveLocked(clientID)]
	if !ok || rec.expiry.IsZero() {
		return nil
	}
	expiry := rec.expiry
	return &expiry
}

// TimeUntilExpiry is zero when no token is cached or it already expired.
func (c *Cache) TimeUntilExpiry(clientID string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.sessions[c.resolveLocked(clientID)]
	if !ok || rec.expiry.IsZero() {
		return 0
	}
	if left := rec.expiry.Sub(c.now()); left > 0 {
		return left
	}
	return 0
}

// CurrentToken returns the cached token as is, without checking expiry.
func (c *Cache) CurrentToken(clientID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.sessions[c.resolveLocked(clientID)]
	if !ok {
		return ""
	}
	return rec.token
}

// Snapshot lists every tracked client, sorted by key. Tokens are masked.
func (c *Cache) Snapshot() []Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make([]Status, 0, len(c.sessions))
	for key, rec := range c.sessions {
		st := Status{
			ClientKey:       key,
			UserName:        rec.userName,
			HasToken:        rec.token != "",
			Valid:           rec.token != "" && now.Before(rec.expiry),
			Validating:      rec.validating,
			TimeUntilExpiry: "0s",
			TokenPreview:    maskToken(rec.token),
		}
		if !rec.expiry.IsZero() {
			expiry := rec.expiry
			st.Expiry = &expiry
			if left := expiry.Sub(now); left > 0 {
				st.TimeUntilExpiry = left.Round(time.Second).String()
			}
		}
		out = append(out, st)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ClientKey < out[j].ClientKey })
	return out
}

func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// Sweep validates every cached token that is not already being validated.
// Each client runs concurrently; a success extends expiry a full TTL from now.
func (c *Cache) Sweep(ctx context.Context) {
	c.mu.Lock()
	type target struct{ key, token string }
	targets := make([]target, 0, len(c.sessions))
	for key, rec := range c.sessions {
		if rec.token != "" && !rec.validating {
			targets = append(targets, target{key: key, token: rec.token})
		}
	}
	c.mu.Unlock()

	var g errgroup.Group
	for _, t := range targets {
		g.Go(func() error {
			if c.Validate(ctx, t.key) {
				c.extend(t.key, t.token)
				c.log.WithField("client", t.key).Debug("sweep extended token")
			}
			return nil
		})
	}
	_ = g.Wait()

	c.log.WithField("clients", len(targets)).Debug("session sweep finished")
}

// Start launches the periodic sweep. Calling it more than once has no effect.
func (c *Cache) Start() {
	c.startOnce.Do(func() {
		go c.loop()
	})
}

func (c *Cache) loop() {
	defer close(c.done)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-c.stop:
			c.log.Info("session sweep stopped")
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Stop halts the periodic sweep and waits for an in-flight pass to return.
// Safe to call more than once, and before Start.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	// never started: mark done so a later Start is a no-op
	c.startOnce.Do(func() { close(c.done) })
	<-c.done
}
