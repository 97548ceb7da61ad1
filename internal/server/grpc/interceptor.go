package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gophauth/internal/authrpc"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const identityKey ctxKey = "identity"

// authInterceptor resolves the bearer token of protected methods into an
// Identity on the context. A missing or rejected token leaves the context
// untouched and the handler answers Unauthenticated.
func (s *GRPCServer) authInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	level := authrpc.MethodAuth(info.FullMethod)
	if level == authrpc.AuthNone {
		return handler(ctx, req)
	}

	token, ok := bearerFromMetadata(ctx)
	if !ok {
		return handler(ctx, req)
	}

	id, err := s.users.Authenticate(ctx, token, level == authrpc.AuthStrict)
	switch {
	case err == nil:
		ctx = context.WithValue(ctx, identityKey, id)
	case errors.Is(err, common.ErrorInternal):
		return nil, s.toStatus(ctx, err)
	default:
		s.logger.Debug(ctx, "bearer rejected", "method", info.FullMethod, "error", err)
	}

	return handler(ctx, req)
}

func bearerFromMetadata(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	values := md.Get(common.AuthorizationHeaderName)
	if len(values) == 0 {
		return "", false
	}
	return common.ParseBearer(values[0])
}

// identityFrom returns the caller set by authInterceptor.
func identityFrom(ctx context.Context) (*services.Identity, error) {
	id, ok := ctx.Value(identityKey).(*services.Identity)
	if !ok || id == nil {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return id, nil
}
