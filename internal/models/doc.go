// Package models defines domain entities and wire envelopes for the tubeq download pipeline.
//
// The package contains three categories of types:
//
// 1. Persistent Entities: repository-backed records
//   - [Video] : a platform video, optionally carrying a cached artifact reference
//   - [Playlist] : a platform playlist with its refresh lease ([Playlist.Updating], [Playlist.UpdatingSince])
//   - [PlaylistExport] : a playlist with its known videos and subscribers
//
// 2. Envelopes: the closed tagged unions exchanged over the queues
//   - [Task] : [DownloadTask] or [PlaylistTask], consumed by workers
//   - [Answer] : [DownloadResult] or [PlaylistResult], consumed by the answer processor
//
// Envelopes are JSON objects discriminated by a "type" field. [DecodeTask] and [DecodeAnswer]
// reject unknown types, unknown [ErrorCode] values and envelopes missing their identity fields.
//
// 3. Delivery
//   - [Notification] : what a requester is told about a finished download
//
// All persistent entities implement the Model interface providing timestamps and validation.
package models
