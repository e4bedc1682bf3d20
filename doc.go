// Package lingoclient is an authenticated HTTP client for the Lingo learning
// backend.
//
// Callers name a logical API path ("/v1/api/user/:id") and a parameter object.
// The client resolves the path to a concrete URL for the active environment,
// attaches a valid access token, sends the request and normalizes the JSON
// envelope into a payload or a typed error. Token expiry is handled
// transparently: concurrent callers share one refresh, and a failed refresh
// falls back to exactly one re-login.
//
// # Architecture
//
// Store: a typed key-value store over a pluggable Backend (memory, file,
// Redis, SQL via GORM, Cloud Datastore, or an scs session store). Keys are
// declared in a Schema as volatile or durable.
//
// Resolver: maps a logical path to a URL using an environment/version table
// and appends a cache-busting timestamp.
//
// Executor: performs exactly one HTTP call and classifies the outcome as
// success, transport error, business error or unauthorized.
//
// TokenManager: guarantees a valid access token before authenticated calls
// and coordinates refresh and re-login so only one of each runs at a time.
//
// Endpoint: a declarative descriptor (method, path, public flag) with typed
// request and response shapes, bound to a Client with Bind.
//
// # Basic Usage
//
//	backend, _ := fs.NewBackend("/home/me/.lingo")
//	store := lingoclient.NewStore(backend)
//
//	resolver := lingoclient.NewResolver(lingoclient.EnvProduction, lingoclient.DomainTable{
//	    lingoclient.EnvProduction: {
//	        "v1": "https://api.example.com/v1",
//	        "v2": "https://api.example.com/v2",
//	    },
//	})
//
//	client := lingoclient.NewClient(resolver, store,
//	    lingoclient.WithCodeSource(lingoclient.StaticCode(code)))
//
// Declare and bind endpoints:
//
//	var GetUser = lingoclient.MustEndpoint[GetUserParams, User](
//	    "user.get", http.MethodGet, "/v1/api/user/:id")
//
//	getUser := lingoclient.Bind(client, GetUser)
//	user, err := getUser(ctx, GetUserParams{ID: "42"})
//
// # Errors
//
// Every failure matches one of the sentinel errors with errors.Is:
//
//	ErrConfig         path or environment problem, raised before any I/O
//	ErrTransport      the request never produced a response (status 500)
//	ErrBusiness       the server answered with an error envelope
//	ErrUnauthorized   the server answered 401; stored credentials were cleared
//	ErrLoginRequired  refresh and re-login both failed
//
// Use errors.As with *Error to read the status code, error code and message.
package lingoclient
