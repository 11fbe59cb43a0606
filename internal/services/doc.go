// Package services holds the pipeline's external collaborators behind narrow interfaces.
//
// # Fetch Capability
//
// A [Fetcher] turns a canonical video URL into a local artifact path and a playlist URL into the
// platform-native ids of its current members. [LoaderService] implements it over HTTP against a
// per-platform loader sidecar:
//
//	POST {loader_url}/api/download        {"url": ...}  -> 200 path | 401 | 404 | 413 | 400
//	GET  {loader_url}/api/get/playlist?url=...          -> 200 {"video_ids": [...]}
//
// Failures are returned as [*FetchError] whose [FetchErrorKind] maps onto a [models.ErrorCode].
// Anything else (transport errors, timeouts, unexpected statuses) is an internal error.
//
// # Platforms
//
// A [Registry] holds one [Platform] per configured video site: URL patterns that extract native ids,
// templates that rebuild canonical URLs, and the platform's Fetcher. Platforms are data; adding a
// site is a [shared.PlatformConfig] entry.
//
// # Artifact Storage
//
// An [ArtifactStore] keeps a fetched file and returns the reference stored on the video:
//   - [LocalStore] : moves files under a media directory
//   - [MinioStore] : uploads to an S3 compatible bucket, references look like s3://bucket/key
//
// # Notifications
//
// A [Notifier] tells a requester about a resolved download:
//   - [WebhookNotifier] : POSTs the [models.Notification] to the chat front-end
//   - [LogNotifier] : logs it, for deployments without a front-end
package services
