package element

import "sync"

// Children caching is only active inside a scope. Scopes nest; the cache of
// every element is invalidated when the outermost scope ends, by bumping the
// generation the next time a scope opens.
var (
	scopeMu    sync.Mutex
	scopeDepth int
	scopeGen   uint64
)

// BeginCaching opens a caching scope. The returned function closes it and is
// safe to call more than once.
func BeginCaching() (end func()) {
	scopeMu.Lock()
	if scopeDepth == 0 {
		scopeGen++
	}
	scopeDepth++
	scopeMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			scopeMu.Lock()
			scopeDepth--
			scopeMu.Unlock()
		})
	}
}

// WithCaching runs fn inside a caching scope.
func WithCaching(fn func() error) error {
	end := BeginCaching()
	defer end()
	return fn()
}

// Caching reports whether a caching scope is active.
func Caching() bool {
	scopeMu.Lock()
	defer scopeMu.Unlock()
	return scopeDepth > 0
}

func activeGeneration() (uint64, bool) {
	scopeMu.Lock()
	defer scopeMu.Unlock()
	return scopeGen, scopeDepth > 0
}

func (e *Element) cachedChildren() ([]*Element, bool) {
	gen, active := activeGeneration()
	if !active || e.children == nil || e.childrenGen != gen {
		return nil, false
	}
	out := make([]*Element, len(e.children))
	copy(out, e.children)
	return out, true
}

func (e *Element) storeChildren(children []*Element) {
	gen, active := activeGeneration()
	if !active {
		e.children, e.childrenGen = nil, 0
		return
	}
	e.children = make([]*Element, len(children))
	copy(e.children, children)
	e.childrenGen = gen
}
