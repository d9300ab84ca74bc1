// Package core contains the Kick client session: managed OAuth tokens, the
// refresher contract, the session coordinator that keeps the outbound
// Authorization header and cached webhook public key in step with the current
// credential, and the lifecycle event bus. Transport and storage adapters
// depend on this package; core must not depend on them.
package core
