package profile

import (
	"errors"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned by a Loader that has no profile of that name.
var ErrNotFound = errors.New("profile not found")

// Loader supplies profiles from outside the binary. Load is called on every
// resolution so profiles added at runtime are picked up.
type Loader interface {
	Load(name string) (*Profile, error)
	Names() ([]string, error)
}

// Registry resolves a URL to a profile. Statically registered profiles are
// tried in registration order, followed by profiles only the loader knows.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	static map[string]*Profile
	loader Loader
	logger *slog.Logger
}

func NewRegistry(loader Loader, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		static: make(map[string]*Profile),
		loader: loader,
		logger: logger.With("component", "registry"),
	}
}

// Register adds a profile. Registering a name twice replaces the profile
// but keeps its original position.
func (r *Registry) Register(p *Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.static[p.Name]; !ok {
		r.order = append(r.order, p.Name)
	}
	r.static[p.Name] = p.normalized()
}

// Resolve never fails: it falls back to the base profile and then to
// Default.
func (r *Registry) Resolve(rawURL string) *Profile {
	host := Hostname(rawURL)

	for _, name := range r.candidates() {
		if name == BaseName {
			continue
		}
		if p := r.lookup(name); p != nil && p.Matches(host) {
			r.logger.Debug("profile resolved", "host", host, "profile", p.Name)
			return p
		}
	}

	if base := r.lookup(BaseName); base != nil {
		r.logger.Debug("no site profile matched, using base", "host", host)
		return base
	}

	r.logger.Warn("site profile not found, using default", "host", host)
	return Default()
}

// Names lists the candidate profile names in resolution order.
func (r *Registry) Names() []string {
	return r.candidates()
}

func (r *Registry) candidates() []string {
	r.mu.RLock()
	names := append([]string(nil), r.order...)
	known := make(map[string]bool, len(r.static))
	for n := range r.static {
		known[n] = true
	}
	r.mu.RUnlock()

	if r.loader == nil {
		return names
	}

	extra, err := r.loader.Names()
	if err != nil {
		r.logger.Warn("failed to list profile directory", "error", err)
		return names
	}
	sort.Strings(extra)
	for _, n := range extra {
		if !known[n] {
			names = append(names, n)
		}
	}
	return names
}

func (r *Registry) lookup(name string) *Profile {
	r.mu.RLock()
	static := r.static[name]
	r.mu.RUnlock()

	if r.loader == nil {
		return static
	}

	loaded, err := r.loader.Load(name)
	switch {
	case err == nil:
		return merge(static, loaded).normalized()
	case errors.Is(err, ErrNotFound):
		return static
	default:
		r.logger.Warn("failed to load profile", "profile", name, "error", err)
		return static
	}
}

// merge lets a loaded profile override the declarative parts of a static
// one while keeping the static hooks, which cannot be expressed in a file.
func merge(static, loaded *Profile) *Profile {
	if static == nil {
		return loaded
	}
	out := *loaded
	if out.Name == "" {
		out.Name = static.Name
	}
	if len(out.Domains) == 0 {
		out.Domains = static.Domains
	}
	if len(out.Selectors) == 0 {
		out.Selectors = static.Selectors
	}
	out.Load = mergeLoad(static.Load, out.Load)
	if out.Locale == "" {
		out.Locale = static.Locale
	}
	if out.TimezoneID == "" {
		out.TimezoneID = static.TimezoneID
	}
	if out.Enricher == nil {
		out.Enricher = static.Enricher
	}
	if out.PostProcessor == nil {
		out.PostProcessor = static.PostProcessor
	}
	return &out
}

// mergeLoad takes each load field from the file when set there.
func mergeLoad(static, loaded LoadPolicy) LoadPolicy {
	out := static
	if loaded.WaitUntil != "" {
		out.WaitUntil = loaded.WaitUntil
	}
	if loaded.Timeout > 0 {
		out.Timeout = loaded.Timeout
	}
	if loaded.ReadySelector != "" {
		out.ReadySelector = loaded.ReadySelector
	}
	if loaded.ReadyTimeout > 0 {
		out.ReadyTimeout = loaded.ReadyTimeout
	}
	return out
}

// Hostname returns the lower-cased host of rawURL, or "" when it does not
// parse to one.
func Hostname(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
