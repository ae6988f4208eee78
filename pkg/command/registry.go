package command

import (
	"fmt"
	"sort"

	"github.com/kmolski/acmebot/pkg/eval"
)

// Registry holds the commands known to the evaluator and resolves invocation
// names, including aliases, to operations. It satisfies eval.Resolver.
//
// Registration is not safe for concurrent use; register all commands before
// handing the registry to an evaluator.
type Registry struct {
	byName map[string]*Fn
	names  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Fn)}
}

// AddFn wraps impl using NewFn and registers it under name and any aliases
// given in opts. It panics on duplicate names and returns the registry for
// chaining.
func (r *Registry) AddFn(name string, impl any, opts ...Option) *Registry {
	fn := NewFn(name, impl, opts...)
	r.add(name, fn)
	r.names = append(r.names, name)
	for _, alias := range fn.aliases {
		r.add(alias, fn)
	}
	return r
}

func (r *Registry) add(name string, fn *Fn) {
	if _, ok := r.byName[name]; ok {
		panic(fmt.Sprintf("command %q registered twice", name))
	}
	r.byName[name] = fn
}

// Resolve returns the operation registered under name. Resolution is
// case-sensitive.
func (r *Registry) Resolve(name string) (eval.Operation, bool) {
	fn, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return fn, true
}

// Fn returns the command registered under name, under its canonical name or
// an alias.
func (r *Registry) Fn(name string) (*Fn, bool) {
	fn, ok := r.byName[name]
	return fn, ok
}

// Names returns the canonical command names in sorted order. Aliases are not
// included.
func (r *Registry) Names() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	sort.Strings(names)
	return names
}
