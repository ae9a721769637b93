package domain

// IdentitySourceKind tags where a profile's credentials live.
type IdentitySourceKind string

const (
	// IdentitySourceLegacy means credentials are a locally stored hash that
	// predates the remote provider.
	IdentitySourceLegacy IdentitySourceKind = "legacy"
	// IdentitySourceRemote means the remote provider owns the credentials.
	IdentitySourceRemote IdentitySourceKind = "remote"
)

// IdentitySource is the resolved credential location for a profile. It is
// resolved once per profile so callers branch on a tagged value instead of
// re-checking columns at every call site.
type IdentitySource struct {
	Kind        IdentitySourceKind
	RemoteID    string // set when Kind is IdentitySourceRemote
	PasswordRef string // set when Kind is IdentitySourceLegacy
}

// ResolveIdentitySource determines the credential source for a profile.
// A profile with a confirmed remote identity is always remote-sourced, even
// if a legacy password reference lingers.
func ResolveIdentitySource(p Profile) IdentitySource {
	if p.RemoteID != "" {
		return IdentitySource{Kind: IdentitySourceRemote, RemoteID: p.RemoteID}
	}
	return IdentitySource{Kind: IdentitySourceLegacy, PasswordRef: p.PasswordRef}
}
