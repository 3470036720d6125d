// Package testkit provisions fully authenticated test users against a
// bun-backed authentication store, for consumption by end-to-end test
// harnesses.
//
// Server side:
//   - CreateTestUserHandler creates a user, an optional credential account,
//     and a session in one call, bypassing the normal signup flow, then runs
//     registered plugins in order. A plugin failure aborts the call and rolls
//     the user back, so a failed provisioning never leaves an account behind.
//   - DeleteTestUserHandler tears a user down: plugin cleanup hooks run in
//     reverse registration order and are failure-isolated, and the user row is
//     deleted regardless of cleanup warnings.
//   - RegisterTestDataRoutes mounts the provisioning endpoints behind a
//     shared-secret guard. With no secret configured the endpoints answer 404,
//     so the feature is off unless a deployment opts in.
//
// Plugins:
//   - Plugin attaches auxiliary resources (organizations, API keys, ...) to a
//     freshly created user. Plugins are host-registered, stateless across
//     calls, and may mutate the session row; the orchestrator re-fetches the
//     session before signing the outward cookie so mutations are never lost.
//
// The fixture subpackage holds the client half: a per-test fixture that calls
// these endpoints, installs the returned session cookie into a browser
// context, and guarantees teardown of every user it created.
package testkit
