package session

const (
	loginFailed        = "Login failed"
	registrationFailed = "Registration failed"
)

// Reasons logged when a stored credential cannot be restored.
const (
	reasonExpired     = "expired"
	reasonMalformed   = "malformed"
	reasonRejected    = "rejected"
	reasonUnreachable = "unreachable"
	reasonStoreError  = "store_error"
)
