package model

// Credential is the portal account used for the single-sign-on handshake.
// It lives only in memory; only the RSA-encrypted password leaves the process.
type Credential struct {
	Username string
	Password string
}
