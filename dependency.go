package rulekit

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/golobby/cast"
)

// DependencyKind selects the innermost scope a slot is resolved from. Resolution
// always walks outward from there: module, parent modules, service, configuration.
type DependencyKind int

const (
	// RuleDependency starts with the rules of the consuming module.
	RuleDependency DependencyKind = iota
	// ServiceDependency starts with the persistent service module.
	ServiceDependency
	// ConfigDependency only consults the configuration store.
	ConfigDependency
)

func (k DependencyKind) String() string {
	switch k {
	case RuleDependency:
		return "rule"
	case ServiceDependency:
		return "service"
	case ConfigDependency:
		return "config"
	default:
		return fmt.Sprintf("DependencyKind(%d)", int(k))
	}
}

// Key names a capability of type T. Providers and consumers of the same capability
// must use the same key.
type Key[T any] struct {
	name string
}

// NewKey creates a key. For configuration slots the name is the configuration key.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

func (k Key[T]) Name() string {
	return k.name
}

// Provision is one capability exposed by a rule.
type Provision struct {
	key   string
	value any
}

// Provide declares that value serves key.
func Provide[T any](key Key[T], value T) Provision {
	return Provision{key: key.name, value: value}
}

func (p Provision) Key() string {
	return p.key
}

// Provider is implemented by rules exposing capabilities to their module, to
// submodules of their module and, for service rules, to every mode.
type Provider interface {
	Provides() []Provision
}

// Consumer is implemented by rules declaring typed slots.
type Consumer interface {
	Dependencies() []Dependency
}

// Dependency is the untyped view of a Slot used by the resolver.
type Dependency interface {
	Key() string
	Kind() DependencyKind
	Required() bool
	Bound() bool

	bind(v any, convert bool) error
	unbind()
}

// Slot holds one resolved dependency of type T.
type Slot[T any] struct {
	key      string
	kind     DependencyKind
	required bool
	value    T
	bound    bool
}

// Require declares a slot that must resolve before the module may initialize its rules.
func Require[T any](key Key[T], kind DependencyKind) *Slot[T] {
	return &Slot[T]{key: key.name, kind: kind, required: true}
}

// Optional declares a slot that stays empty when nothing provides it.
func Optional[T any](key Key[T], kind DependencyKind) *Slot[T] {
	return &Slot[T]{key: key.name, kind: kind}
}

// Get returns the bound value or the zero value of T.
func (s *Slot[T]) Get() T {
	return s.value
}

func (s *Slot[T]) Key() string          { return s.key }
func (s *Slot[T]) Kind() DependencyKind { return s.kind }
func (s *Slot[T]) Required() bool       { return s.required }
func (s *Slot[T]) Bound() bool          { return s.bound }

func (s *Slot[T]) bind(v any, convert bool) error {
	if t, ok := v.(T); ok {
		s.value, s.bound = t, true
		return nil
	}
	if convert {
		converted, err := cast.FromType(fmt.Sprint(v), reflect.TypeFor[T]())
		if err == nil {
			if t, ok := converted.(T); ok {
				s.value, s.bound = t, true
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s has %T", ErrDependencyTypeMismatch, s.key, v)
}

func (s *Slot[T]) unbind() {
	var zero T
	s.value, s.bound = zero, false
}

// providerScope is one link of the resolution chain.
type providerScope interface {
	scopeName() string
	provision(key string) (any, bool)
	converts() bool
}

// providerSet maps keys to the first rule that provides them.
type providerSet struct {
	name   string
	values map[string]any
	owners map[string]RuleID
}

func newProviderSet(name string) *providerSet {
	return &providerSet{name: name, values: make(map[string]any), owners: make(map[string]RuleID)}
}

func (p *providerSet) scopeName() string { return p.name }
func (p *providerSet) converts() bool    { return false }

func (p *providerSet) provision(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// add registers the provisions of r. It returns the keys that were already taken.
func (p *providerSet) add(id RuleID, r Rule) []string {
	provider, ok := r.(Provider)
	if !ok {
		return nil
	}
	var shadowed []string
	for _, prov := range provider.Provides() {
		if _, exists := p.values[prov.key]; exists {
			shadowed = append(shadowed, prov.key)
			continue
		}
		p.values[prov.key] = prov.value
		p.owners[prov.key] = id
	}
	return shadowed
}

type configScope struct {
	store ConfigStore
}

func (c configScope) scopeName() string { return "configuration" }
func (c configScope) converts() bool    { return true }

func (c configScope) provision(key string) (any, bool) {
	if c.store == nil {
		return nil, false
	}
	return c.store.Lookup(key)
}

// resolveSlot binds dep against chain, nearest scope first. A provider of the right
// key but wrong type is skipped so an outer scope can still serve the slot.
func resolveSlot(id RuleID, dep Dependency, chain []providerScope) error {
	searched := make([]string, 0, len(chain))
	var mismatch error
	for _, scope := range chain {
		searched = append(searched, scope.scopeName())
		v, ok := scope.provision(dep.Key())
		if !ok {
			continue
		}
		if err := dep.bind(v, scope.converts()); err != nil {
			mismatch = err
			continue
		}
		return nil
	}
	dep.unbind()
	if !dep.Required() {
		return nil
	}
	cause := ErrDependencyNotFound
	if mismatch != nil {
		cause = ErrDependencyTypeMismatch
	}
	return &DependencyError{Rule: id, Key: dep.Key(), Kind: dep.Kind(), Searched: searched, Err: cause}
}

// resolveRules binds every slot of every rule and joins the failures of required slots.
func resolveRules(ids []RuleID, rules []Rule, chainFor func(DependencyKind) []providerScope) error {
	var errs []error
	for i, r := range rules {
		consumer, ok := r.(Consumer)
		if !ok {
			continue
		}
		for _, dep := range consumer.Dependencies() {
			if err := resolveSlot(ids[i], dep, chainFor(dep.Kind())); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
