package loom

// CredentialSource is a synchronous lookup for the bearer token used to
// authenticate streaming requests. The second return value reports whether
// a token is available; transports fail fast with ErrNoCredential when it
// is false, before any network I/O.
type CredentialSource interface {
	Token() (string, bool)
}

// StaticToken is a CredentialSource backed by a fixed string. The empty
// string means no credential.
type StaticToken string

// Token implements CredentialSource.
func (t StaticToken) Token() (string, bool) {
	return string(t), t != ""
}

// Interface compliance check.
var _ CredentialSource = StaticToken("")
