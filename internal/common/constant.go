package common

// AuthorizationHeaderName is the HTTP header and gRPC metadata key that
// carries the bearer access token.
const AuthorizationHeaderName = "authorization"

// BearerScheme is the only authorization scheme accepted by the guard.
const BearerScheme = "Bearer"
