package lingoclient

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var validMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodPatch:   true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// Descriptor declares one API operation.
type Descriptor struct {
	Name   string
	Method string
	Path   string

	// Public endpoints are sent without credentials and never touch the
	// token state.
	Public bool
}

// Validate checks the method and path.
func (d Descriptor) Validate() error {
	if !validMethods[d.Method] {
		return &ConfigError{Path: d.Path, Reason: fmt.Sprintf("endpoint %q: unsupported method %q", d.Name, d.Method)}
	}
	if !strings.HasPrefix(d.Path, "/") {
		return &ConfigError{Path: d.Path, Reason: fmt.Sprintf("endpoint %q: path must start with /", d.Name)}
	}
	return nil
}

// EndpointOption configures a Descriptor
type EndpointOption func(*Descriptor)

// Public marks an endpoint as not requiring credentials.
func Public() EndpointOption {
	return func(d *Descriptor) {
		d.Public = true
	}
}

// Endpoint is a descriptor with its request (P) and response (R) shapes.
type Endpoint[P, R any] struct {
	Descriptor
}

// NewEndpoint creates a typed endpoint.
func NewEndpoint[P, R any](name, method, path string, opts ...EndpointOption) (Endpoint[P, R], error) {
	d := Descriptor{Name: name, Method: strings.ToUpper(method), Path: path}
	for _, opt := range opts {
		opt(&d)
	}
	if err := d.Validate(); err != nil {
		return Endpoint[P, R]{}, err
	}
	return Endpoint[P, R]{Descriptor: d}, nil
}

// MustEndpoint is like NewEndpoint but panics on an invalid descriptor.
// Intended for package-level endpoint tables.
func MustEndpoint[P, R any](name, method, path string, opts ...EndpointOption) Endpoint[P, R] {
	e, err := NewEndpoint[P, R](name, method, path, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// Validator is implemented by parameter types that check themselves before
// a request is sent. Returning a *ValidationError is preferred.
type Validator interface {
	Validate() error
}

func validate[P any](params *P) error {
	if v, ok := any(*params).(Validator); ok {
		return v.Validate()
	}
	if v, ok := any(params).(Validator); ok {
		return v.Validate()
	}
	return nil
}

// Bind returns a function invoking e through c.
func Bind[P, R any](c *Client, e Endpoint[P, R]) func(context.Context, P) (R, error) {
	d := e.Descriptor
	return func(ctx context.Context, params P) (R, error) {
		var out R
		if err := validate(&params); err != nil {
			return out, err
		}
		_, err := c.Do(ctx, Call{Method: d.Method, Path: d.Path, Params: params, Public: d.Public}, &out)
		return out, err
	}
}

// BindNoParams is Bind for endpoints that take no parameters.
func BindNoParams[R any](c *Client, e Endpoint[struct{}, R]) func(context.Context) (R, error) {
	call := Bind(c, e)
	return func(ctx context.Context) (R, error) {
		return call(ctx, struct{}{})
	}
}

// Registry is a named set of descriptors. It is built once at startup and
// only read afterwards.
type Registry struct {
	endpoints map[string]Descriptor
}

// NewRegistry creates a registry holding ds.
func NewRegistry(ds ...Descriptor) (*Registry, error) {
	r := &Registry{endpoints: make(map[string]Descriptor)}
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds d. Names must be unique.
func (r *Registry) Register(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if _, exists := r.endpoints[d.Name]; exists {
		return &ConfigError{Path: d.Path, Reason: fmt.Sprintf("endpoint %q registered twice", d.Name)}
	}
	r.endpoints[d.Name] = d
	return nil
}

// Lookup returns the descriptor named name
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.endpoints[name]
	return d, ok
}

// Names returns all endpoint names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes the endpoint named name with untyped params, decoding the
// payload into out when out is non-nil.
func (r *Registry) Call(ctx context.Context, c *Client, name string, params any, out any) (*Response, error) {
	d, ok := r.Lookup(name)
	if !ok {
		return nil, &ConfigError{Reason: fmt.Sprintf("unknown endpoint %q", name)}
	}
	return c.Do(ctx, Call{Method: d.Method, Path: d.Path, Params: params, Public: d.Public}, out)
}
