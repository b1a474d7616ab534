package domain

// Identity is the authenticated caller as supplied by the identity provider.
// The user ID is treated as opaque and unique; the display name is
// public-within-room presence information, not a secret.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"name"`
}
