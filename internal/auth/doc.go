// Package auth provides authentication and authorization for warden-gateway.
//
// # Caller Resolution
//
// Bearer credentials are resolved against the session store:
//
//	resolver := auth.NewResolver(sessions, logger)
//	caller := resolver.ResolveCaller(ctx, credential)
//
// A missing, unknown, or expired credential yields an anonymous caller.
// ResolveCaller never returns an error: the boundary that called it decides
// whether anonymity is a hard failure based on whether a credential was
// supplied at all.
//
// # Scope Requirements
//
// Tools declare a ScopeRequirement with AnyOf/AllOf scope lists, an optional
// Privileged flag, and RequireAdminUser. An empty requirement means the tool
// is public. The same predicate governs both discovery and execution:
//
//	authorizer.IsVisible(req, caller)          // tools/list filtering
//	authorizer.Authorize(req, caller, hasCred) // tools/call enforcement
//
// # Error Disclosure Policy
//
// Unauthenticated failures are generic (ErrAuthRequired,
// ErrInvalidCredential) and never reveal which scopes a tool requires.
// Once a caller is known-valid, authorization failures are specific:
// ScopeError names the missing scopes.
//
// # JWT Tokens
//
// Structural token verification (HS256, expiration, issuer, audience) is
// provided by JWTVerifier for the security enforcement chain. It checks
// token shape only; scope decisions stay in the Authorizer.
//
// # Context Plumbing
//
// The resolved caller travels with the request:
//
//	ctx = auth.WithCaller(ctx, caller)
//	caller := auth.CallerFromContext(ctx)
package auth
