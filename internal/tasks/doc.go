// Package tasks implements the download pipeline: classifying requests, fetching videos concurrently
// and applying results to the repository.
//
// # Components
//
//  1. [Router] : turns requests into tasks
//     - Resolves a raw URL to a platform-scoped video or playlist through [Platforms]
//     - Serves cached videos by publishing a cached [models.DownloadResult] straight to the answer queue
//     - Guards playlist refreshes with the updating flag; a refresh of an updating playlist is skipped
//
//  2. [WorkerPool] : drains the task queue with a bounded number of slots
//     - Calls the platform [services.Fetcher] under a timeout and enforces the size ceiling
//     - Keeps the artifact through a [services.ArtifactStore]
//     - Publishes exactly one answer per task, failures included
//
//  3. [AnswerProcessor] : the single consumer of the answer queue
//     - Records artifacts and notifies the requester, or every subscriber for playlist downloads
//     - Diffs playlist listings against known membership with [NewVideoIDs]
//     - Clears the playlist updating flag for every playlist answer
//
// # Refresh Lifecycle
//
// A playlist is Idle until [Router.TriggerPlaylistRefresh] marks it updating and enqueues a
// [models.PlaylistTask]. Any [models.PlaylistResult] for it returns it to Idle. Triggers in between
// are dropped. With a lease configured, a playlist updating for longer than the lease counts as Idle.
//
// # Delivery
//
// Queues are at-least-once. Handlers acknowledge a delivery only after its effects are durable;
// infrastructure failures return the delivery to the queue and stop the component.
package tasks
