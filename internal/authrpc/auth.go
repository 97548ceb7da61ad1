// Package authrpc holds what the gophauth server and client must agree on
// beyond the protobuf contract in internal/proto: how the bearer token
// travels and which methods require one.
package authrpc

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/common"
	pb "github.com/dmitrijs2005/gophauth/internal/proto"
	"google.golang.org/grpc/metadata"
)

// WithBearer attaches an access token to outgoing call metadata.
func WithBearer(ctx context.Context, accessToken string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, common.AuthorizationHeaderName, common.FormatBearer(accessToken))
}

// AuthLevel is how much a method trusts the bearer token it is given.
type AuthLevel int

const (
	// AuthNone marks public methods.
	AuthNone AuthLevel = iota
	// AuthFast trusts a valid signature until expiry.
	AuthFast
	// AuthStrict also requires the token to be live in the revocation ledger.
	AuthStrict
)

var methodAuth = map[string]AuthLevel{
	pb.AuthService_Me_FullMethodName:             AuthFast,
	pb.AuthService_UpdateProfile_FullMethodName:  AuthFast,
	pb.AuthService_Logout_FullMethodName:         AuthStrict,
	pb.AuthService_ChangePassword_FullMethodName: AuthStrict,
	pb.AuthService_DeleteAccount_FullMethodName:  AuthStrict,
}

// MethodAuth returns the auth level of a full method path.
func MethodAuth(fullMethod string) AuthLevel {
	return methodAuth[fullMethod]
}
