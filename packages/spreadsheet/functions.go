package spreadsheet

import (
	"sort"
	"strings"
)

// EagerFunc receives fully evaluated arguments.
type EagerFunc func(args []Result, h *Helpers) (Result, error)

// LazyFunc receives the raw argument nodes and evaluates only what it needs
// through the context.
type LazyFunc func(args []Node, ctx *LazyContext) (Result, error)

// Function is a registry entry. exactly one of Eager or Lazy is set.
type Function struct {
	Name  string
	Eager EagerFunc
	Lazy  LazyFunc
}

// Registry resolves function names. LookupExtended covers the
// compatibility namespace (names written with an _xlfn. prefix) and is
// consulted first. names are passed upper-cased without the prefix.
type Registry interface {
	Lookup(name string) (*Function, bool)
	LookupExtended(name string) (*Function, bool)
	Names() []string
}

// LazyContext is handed to lazy functions.
type LazyContext struct {
	// Evaluate evaluates an argument node in the caller's scope.
	Evaluate func(node Node) (Result, error)
	Helpers  *Helpers
	// ParseReference parses reference text such as "Sheet2!A1:B3".
	ParseReference func(text string) (Node, error)
	Origin         CellAddress
	Sheet          int
	DateSystem     DateSystem
}

// FunctionRegistry is a map backed Registry.
type FunctionRegistry struct {
	standard map[string]*Function
	extended map[string]*Function
}

// NewFunctionRegistry creates an empty registry
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		standard: make(map[string]*Function),
		extended: make(map[string]*Function),
	}
}

// Register adds fn to the standard namespace, replacing any entry with the
// same name.
func (r *FunctionRegistry) Register(fn *Function) *FunctionRegistry {
	r.standard[strings.ToUpper(fn.Name)] = fn
	return r
}

// RegisterExtended adds fn to the compatibility namespace.
func (r *FunctionRegistry) RegisterExtended(fn *Function) *FunctionRegistry {
	r.extended[strings.ToUpper(fn.Name)] = fn
	return r
}

func (r *FunctionRegistry) Lookup(name string) (*Function, bool) {
	fn, ok := r.standard[strings.ToUpper(name)]
	return fn, ok
}

func (r *FunctionRegistry) LookupExtended(name string) (*Function, bool) {
	fn, ok := r.extended[strings.ToUpper(name)]
	return fn, ok
}

// Names returns every registered name, sorted.
func (r *FunctionRegistry) Names() []string {
	seen := make(map[string]struct{}, len(r.standard)+len(r.extended))
	for name := range r.standard {
		seen[name] = struct{}{}
	}
	for name := range r.extended {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// compatibility prefixes written by newer Excel versions
var functionPrefixes = []string{"_XLFN._XLWS.", "_XLFN.", "_XLWS."}

// normalizeFunctionName upper-cases name and strips a compatibility prefix.
func normalizeFunctionName(name string) string {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for _, prefix := range functionPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return upper[len(prefix):]
		}
	}
	return upper
}
