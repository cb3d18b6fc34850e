package common

const (
	// AuthorizationHeaderName carries the bearer token on protected requests.
	AuthorizationHeaderName = "Authorization"

	// BearerScheme is the only accepted authorization scheme.
	BearerScheme = "Bearer"

	// RegistrationSecretHeaderName carries the shared secret that gates
	// self-registration.
	RegistrationSecretHeaderName = "X-Registration-Secret"

	// ServiceTokenMetadataKey is the gRPC metadata key internal callers use
	// to authenticate against the identity service.
	ServiceTokenMetadataKey = "x-service-token"
)
