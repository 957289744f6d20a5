package flows

// Deps groups flow dependency sets. The root engine builds this once and
// delegates each request to the matching flow.
type Deps struct {
	Issue         IssueDeps
	Verify        VerifyDeps
	Refresh       RefreshDeps
	Logout        LogoutDeps
	Introspection IntrospectionDeps
}
