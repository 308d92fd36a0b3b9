package runtime

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Handler executes one job type.
type Handler interface {
	Type() string
	Run(ctx *Context) error
}

// Registry maps job_type to its handler. Workers only claim registered types.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register adds handlers, stopping at the first nil, unnamed or duplicate one.
func (r *Registry) Register(hs ...Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range hs {
		if h == nil {
			return errors.New("register job handler: nil handler")
		}
		jobType := h.Type()
		switch {
		case jobType == "":
			return errors.New("register job handler: empty job type")
		case r.handlers[jobType] != nil:
			return fmt.Errorf("register job handler: %s already registered", jobType)
		}
		r.handlers[jobType] = h
	}
	return nil
}

func (r *Registry) Lookup(jobType string) (Handler, bool) {
	r.mu.RLock()
	h, ok := r.handlers[jobType]
	r.mu.RUnlock()
	return h, ok
}

// Types lists registered job types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.handlers))
	for jobType := range r.handlers {
		out = append(out, jobType)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
