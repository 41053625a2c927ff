// Package server provides HTTP routing, middleware, and the OAuth callback used by the CLI.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter] registers
// handlers as [http.ServeMux] method patterns, so a request with the wrong method answers 405.
//
// [Middleware] registered first wraps outermost. [Logging] records each request at debug level.
//
// # OAuth Callback Handler
//
// [OAuthHandler] serves GET /callback for the authorization-code flow. It checks the state
// parameter, trades the code through an [Exchanger] (see [PKCEExchanger]) and sends exactly one
// [OAuthResult]. Only the first callback is processed.
//
// # Callback Server
//
// `crossplay auth spotify` runs a [CallbackServer] on the configured host and port for the
// duration of one authorization, then shuts it down.
package server
