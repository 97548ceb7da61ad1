package common

// AuthorizationHeaderName is the gRPC metadata key carrying the bearer
// credential on authenticated requests.
const AuthorizationHeaderName = "authorization"

// BearerScheme prefixes the access token in the authorization header.
const BearerScheme = "Bearer"
