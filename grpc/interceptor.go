package grpc

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	lc "github.com/panyam/lingoclient"
)

// InterceptorConfig configures the client interceptors.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// PublicMethods is a set of method names called without a token.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool

	// Logger reports failures to clear credentials. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultInterceptorConfig returns a config that authenticates all methods.
func DefaultInterceptorConfig() *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig()
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

func normalize(config *InterceptorConfig) *InterceptorConfig {
	if config == nil {
		config = DefaultInterceptorConfig()
	}
	if config.Config == nil {
		config.Config = DefaultConfig()
	}
	config.Config.EnsureDefaults()
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return config
}

// outgoing attaches the request id and, unless method is public, the bearer
// token to ctx.
func outgoing(ctx context.Context, tm *lc.TokenManager, config *InterceptorConfig, method string) (context.Context, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, config.MetadataKeyRequestID, uuid.NewString())
	if config.PublicMethods[method] {
		return ctx, nil
	}
	token, err := tm.Token(ctx)
	if err != nil {
		return nil, err
	}
	return metadata.AppendToOutgoingContext(ctx, config.MetadataKeyAuthorization, "Bearer "+token), nil
}

// unauthorized clears credentials when the server rejected the token and
// converts the status into a lingoclient unauthorized error.
func unauthorized(ctx context.Context, tm *lc.TokenManager, config *InterceptorConfig, err error) error {
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Unauthenticated {
		return err
	}
	if clearErr := tm.Invalidate(context.WithoutCancel(ctx)); clearErr != nil {
		config.Logger.Error("failed to clear credentials", "err", clearErr)
	}
	return &lc.Error{
		Kind:       lc.KindUnauthorized,
		StatusCode: http.StatusUnauthorized,
		Code:       st.Code().String(),
		Message:    st.Message(),
		Err:        err,
	}
}

// UnaryClientInterceptor returns a gRPC unary client interceptor that attaches
// the access token. An Unauthenticated response clears stored credentials.
func UnaryClientInterceptor(tm *lc.TokenManager, config *InterceptorConfig) grpc.UnaryClientInterceptor {
	config = normalize(config)

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx, err := outgoing(ctx, tm, config, method)
		if err != nil {
			return err
		}
		if err := invoker(ctx, method, req, reply, cc, opts...); err != nil {
			return unauthorized(ctx, tm, config, err)
		}
		return nil
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor.
// Only errors returned while opening the stream are checked for Unauthenticated.
func StreamClientInterceptor(tm *lc.TokenManager, config *InterceptorConfig) grpc.StreamClientInterceptor {
	config = normalize(config)

	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		ctx, err := outgoing(ctx, tm, config, method)
		if err != nil {
			return nil, err
		}
		stream, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			return nil, unauthorized(ctx, tm, config, err)
		}
		return stream, nil
	}
}

// PerRPCCredentials returns credentials for grpc.WithPerRPCCredentials. Unlike
// the interceptors it applies to every method and does not clear credentials
// on Unauthenticated.
func PerRPCCredentials(tm *lc.TokenManager, requireTLS bool) credentials.PerRPCCredentials {
	return &perRPC{tm: tm, requireTLS: requireTLS}
}

type perRPC struct {
	tm         *lc.TokenManager
	requireTLS bool
}

func (p *perRPC) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	token, err := p.tm.Token(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{DefaultMetadataKeyAuthorization: "Bearer " + token}, nil
}

func (p *perRPC) RequireTransportSecurity() bool {
	return p.requireTLS
}
