// Package host provides an in-process hook registry that stands in for the
// agent platform the kernel is embedded in.
package host

import (
	"sort"
	"sync"

	"github.com/MEKXH/careagent/internal/policy"
)

// Registry collects pre-action and bootstrap hooks and runs them in
// registration order. It implements policy.Host.
type Registry struct {
	mu        sync.RWMutex
	preAction []policy.PreActionHook
	bootstrap []policy.BootstrapHook
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterPreActionHook adds a hook consulted before every tool call.
func (r *Registry) RegisterPreActionHook(fn policy.PreActionHook) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preAction = append(r.preAction, fn)
}

// RegisterBootstrapHook adds a hook run when a session starts.
func (r *Registry) RegisterBootstrapHook(fn policy.BootstrapHook) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bootstrap = append(r.bootstrap, fn)
}

// HookCounts reports how many hooks of each kind are registered.
func (r *Registry) HookCounts() (preAction, bootstrap int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.preAction), len(r.bootstrap)
}

// RunPreAction consults every pre-action hook. The first denial wins and
// stops the chain; with no hooks registered the action is allowed.
func (r *Registry) RunPreAction(action policy.Action) policy.Decision {
	r.mu.RLock()
	hooks := append([]policy.PreActionHook(nil), r.preAction...)
	r.mu.RUnlock()

	for _, hook := range hooks {
		decision := hook(action)
		if !decision.Allowed {
			return decision
		}
	}
	return policy.Decision{Allowed: true}
}

// Session holds the files bootstrap hooks contributed to one session.
type Session struct {
	mu    sync.Mutex
	files map[string]string
}

// AddFile implements policy.BootstrapContext. A later file with the same
// name replaces the earlier one.
func (s *Session) AddFile(name, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = make(map[string]string)
	}
	s.files[name] = content
}

// File returns the content of a bootstrap file.
func (s *Session) File(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[name]
	return content, ok
}

// FileNames returns the bootstrap file names, sorted.
func (s *Session) FileNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartSession runs every bootstrap hook against a fresh session.
func (r *Registry) StartSession() *Session {
	r.mu.RLock()
	hooks := append([]policy.BootstrapHook(nil), r.bootstrap...)
	r.mu.RUnlock()

	session := &Session{}
	for _, hook := range hooks {
		hook(session)
	}
	return session
}
