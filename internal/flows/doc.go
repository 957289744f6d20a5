// Package flows contains the orchestration for every Engine operation.
//
// Each Run* function takes a typed dependency struct and returns a result
// carrying a FailureKind the root package maps to its public errors. Flows
// own no resources; the session store, token signer and user lookup are all
// injected.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import the root package (import cycle).
//   - Log, emit metrics or audit events. The Engine does that from the result.
package flows
