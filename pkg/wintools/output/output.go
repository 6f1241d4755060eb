// Package output renders session records for the command line in several
// formats (pretty, plain, json, yaml, tsv, csv, markdown, template).
//
// Formatters are looked up by name:
//
//	f, err := output.Get("json")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := f.Format(&buf, output.NewResult("history", records)); err != nil {
//	    return err
//	}
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

// Result is what a formatter renders.
type Result struct {
	// Source says where the records came from: "owner", "local" or
	// "history".
	Source string

	Records []types.SessionRecord
}

// NewResult wraps records.
func NewResult(source string, records []types.SessionRecord) *Result {
	return &Result{Source: source, Records: records}
}

// BytesFreed sums BytesFreed over every record.
func (r *Result) BytesFreed() int64 {
	var total int64
	for _, rec := range r.Records {
		total += rec.BytesFreed
	}
	return total
}

// Failed counts failed records.
func (r *Result) Failed() int {
	n := 0
	for _, rec := range r.Records {
		if rec.State == types.StateFailed {
			n++
		}
	}
	return n
}

// Formatter writes a Result to w.
type Formatter interface {
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory creates a Formatter.
type FormatterFactory func() Formatter

// Registry maps names to formatter factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]FormatterFactory)}
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q: available formats are %v", name, r.available())
	}
	return factory(), nil
}

// Available returns the registered names, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.available()
}

func (r *Registry) available() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the built-in formatters.
var DefaultRegistry = NewRegistry()

// Register adds a factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a formatter from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available lists the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
