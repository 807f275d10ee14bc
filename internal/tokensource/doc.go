// Package tokensource supplies bearer credentials to API clients from the
// signed-in session and renews them when the server rejects them.
//
// A Source answers the two callbacks a bearer-auth transport needs:
//   - Load: the credential to attach to a request, read from the session
//   - Refresh: a replacement after a 401, either a newer token another client
//     already stored or, with an Exchanger configured, a fresh pair obtained
//     from POST auth/refresh-token and persisted back to the session
//
// Access tokens that are JWTs carry their expiry into oauth2.Token.Expiry so
// an expired token is renewed before it is sent:
//
//	src, err := tokensource.New(provider, tokensource.WithExchanger(authService))
//	tok, err := src.Load(ctx) // nil when signed out
package tokensource
