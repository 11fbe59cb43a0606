// Package repositories implements SQLite persistence for the download pipeline.
//
// Key Implementations:
//   - [VideoRepository] : videos keyed by (platform, video id) with nullable artifact references
//   - [PlaylistRepository] : playlists with the is_updating flag and its lease timestamp
//   - [SubscriptionRepository] : playlist to requester links
//   - [MembershipRepository] : playlist to video links (known videos of a playlist)
//   - [Store] : composes the four repositories behind the interface the pipeline consumes
//
// Get-or-create operations rely on INSERT ... ON CONFLICT DO NOTHING so concurrent callers agree on one row.
// The updating flag is a compare-and-set: [PlaylistRepository.TryMarkUpdating] is a conditional UPDATE
// whose affected-row count says whether the caller won, and [PlaylistRepository.ClearUpdating] only
// releases the lease it is given.
//
// Sequence numbers provide stable, human-readable ordering independent of platform ids and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
