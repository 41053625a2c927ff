// Package services integrates the external systems a room talks to: provider catalogs, native
// playback controllers and the hosted room store.
//
// # Catalogs
//
// [SpotifyCatalog] and [AppleCatalog] implement [Catalog]. Each returns up to [SearchLimit]
// [models.UniversalTrack] values carrying only its own provider reference; blank titles and
// artists become "Unknown".
//
// # Playback Controllers
//
// [SpotifyPlayer] drives the user's active Spotify Connect device through the Web API and
// [AppleMusicRemote] drives the Music app through a companion bridge on the device. Both implement
// [roomsync.PlaybackController] and wrap failures in [shared.ErrNativeCommandFailed].
//
// # Authentication
//
// Spotify uses the authorization-code flow with PKCE. Tokens are persisted per user through a
// [TokenStore] and refreshed a minute before expiry by [NewSpotifyTokenSource]. Apple Music
// developer tokens are ES256 JWTs signed locally by [AppleTokenSigner] or fetched from the
// hosted function by [FunctionTokenSource].
//
// # Hosted Store
//
// [SupabaseStore] implements [roomsync.RoomStore] over the project's REST API. Room changes
// arrive through a Phoenix channel joined with [RealtimeClient] on realtime:room:{code}.
//
// # Error Handling
//
// [APIResponse.Err] maps HTTP statuses onto shared sentinels:
//   - [shared.ErrNotAuthenticated] : 401
//   - [shared.ErrAuthorizationDenied] : 403
//   - [shared.ErrServiceUnavailable] : 5xx or an unreachable realtime endpoint
//   - [shared.ErrAPIRequest] : any other failure
package services
