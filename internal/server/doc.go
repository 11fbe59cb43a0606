// Package server provides HTTP routing, middleware, and the API through which chat front-ends reach the pipeline.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [RequestID], [Logging] and [Recover] are the stack installed by `tubeq serve`.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns internally.
//
// # Pipeline API
//
// [API] translates JSON requests into [Pipeline] calls (implemented by tasks.Router).
// Requests are answered as soon as the work is queued; results reach the requester through the notifier.
//
// Error mapping:
//   - unsupported or malformed URLs : 404
//   - missing fields, undecodable bodies : 400
//   - anything else : 500, logged with the request id
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
