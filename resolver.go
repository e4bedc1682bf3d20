package lingoclient

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Environment names a deployment the client can talk to.
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvPreview     Environment = "preview"
	EnvDevelopment Environment = "development"
)

// ParseEnvironment validates an environment name.
func ParseEnvironment(s string) (Environment, error) {
	switch env := Environment(strings.ToLower(strings.TrimSpace(s))); env {
	case EnvProduction, EnvPreview, EnvDevelopment:
		return env, nil
	}
	return "", &ConfigError{Reason: fmt.Sprintf("unknown environment %q", s)}
}

// DomainTable maps environment -> API version -> base URL.
type DomainTable map[Environment]map[string]string

// DefaultCacheBustParam is the query parameter carrying the request timestamp.
const DefaultCacheBustParam = "_t"

var pathParamPattern = regexp.MustCompile(`/:([A-Za-z_][A-Za-z0-9_]*)`)

// Resolver turns logical paths such as "/v1/api/users/:id" into absolute URLs
// for the active environment.
type Resolver struct {
	Env     Environment
	Domains DomainTable

	// StrictParams makes a path parameter missing from the payload a
	// ConfigError. When false the parameter is left in the path and a
	// warning is logged.
	StrictParams bool

	// CacheBustParam defaults to DefaultCacheBustParam.
	CacheBustParam string

	Now    func() time.Time
	Logger *slog.Logger
}

// NewResolver creates a resolver for env.
func NewResolver(env Environment, domains DomainTable) *Resolver {
	return &Resolver{
		Env:     env,
		Domains: domains,
	}
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// SubstitutePath replaces each ":name" segment of path with the stringified
// payload value and deletes the used keys from payload. It returns the names
// that had no value in payload.
func (r *Resolver) SubstitutePath(path string, payload map[string]any) (string, []string, error) {
	var missing []string
	used := make(map[string]bool)

	resolved := pathParamPattern.ReplaceAllStringFunc(path, func(segment string) string {
		name := segment[2:]
		value, ok := payload[name]
		if !ok || value == nil {
			missing = append(missing, name)
			return segment
		}
		used[name] = true
		return "/" + url.PathEscape(stringify(value))
	})

	if len(missing) > 0 {
		if r.StrictParams {
			return "", missing, &ConfigError{Path: path, Reason: "missing path parameters " + strings.Join(missing, ", ")}
		}
		r.logger().Warn("path parameters missing from payload, left unsubstituted", "path", path, "missing", missing)
	}

	for name := range used {
		delete(payload, name)
	}
	return resolved, missing, nil
}

// Resolve maps path to an absolute URL. The leading "/<version>" segment is
// replaced by the base URL configured for that version in the active
// environment, query is appended, and a cache-busting timestamp is always set.
func (r *Resolver) Resolve(path string, query url.Values) (string, error) {
	if !strings.HasPrefix(path, "/") {
		return "", &ConfigError{Path: path, Reason: "path must start with /"}
	}

	version, rest, _ := strings.Cut(path[1:], "/")
	if version == "" {
		return "", &ConfigError{Path: path, Reason: "path has no version segment"}
	}

	domains, ok := r.Domains[r.Env]
	if !ok {
		return "", &ConfigError{Path: path, Reason: fmt.Sprintf("no domains configured for environment %q", r.Env)}
	}
	base, ok := domains[version]
	if !ok || base == "" {
		return "", &ConfigError{Path: path, Reason: fmt.Sprintf("no domain for version %q in environment %q", version, r.Env)}
	}

	raw := strings.TrimRight(base, "/")
	if rest != "" {
		raw += "/" + rest
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", &ConfigError{Path: path, Reason: fmt.Sprintf("invalid URL %q: %v", raw, err)}
	}
	if u.Scheme == "" || u.Host == "" {
		return "", &ConfigError{Path: path, Reason: fmt.Sprintf("base URL %q must be absolute", base)}
	}

	q := u.Query()
	for key, values := range query {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	param := r.CacheBustParam
	if param == "" {
		param = DefaultCacheBustParam
	}
	q.Set(param, strconv.FormatInt(r.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// EncodeQuery flattens a payload into query values. Slices become repeated
// keys; nested objects are sent as JSON.
func EncodeQuery(payload map[string]any) url.Values {
	q := url.Values{}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := payload[k].(type) {
		case nil:
		case []any:
			for _, item := range v {
				q.Add(k, stringify(item))
			}
		default:
			q.Add(k, stringify(v))
		}
	}
	return q
}

func stringify(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case fmt.Stringer:
		return v.String()
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	default:
		return fmt.Sprint(v)
	}
}
