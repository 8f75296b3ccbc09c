package constant

const (
	DefaultUserRole  = "user"
	AdminRole        = "admin"
	DefaultTokenType = "Bearer"

	// RefreshCookieName carries the refresh token between client and server.
	RefreshCookieName = "jid"

	TokenUseAccess  = "access"
	TokenUseRefresh = "refresh"

	// LocalsClaimsKey is the fiber Locals key holding verified access claims.
	LocalsClaimsKey = "auth_claims"
)
