// Package repositories implements the room stores and the SQLite persistence behind them.
//
// Two [roomsync.RoomStore] implementations live here:
//   - [LocalStore] : SQLite tables with an in-process [Feed] that publishes every committed room write
//   - [RedisStore] : JSON documents in Redis with change notifications over pub/sub
//
// The SQLite repositories used by [LocalStore] are also usable on their own:
//   - [RoomRepository] : rooms keyed by id and by upper-case room code
//   - [EventRepository] : the append-only room event log
//   - [MemberRepository] : room membership
//   - [UserRepository] : users resolved (and created on first use) by username
//   - [ConnectionRepository] : OAuth tokens per user and streaming provider
//
// [ProviderDirectory] memoizes provider key to backend row id lookups for the lifetime of the process.
package repositories
