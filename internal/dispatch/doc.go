// Package dispatch routes language-tagged requests to per-language worker
// actors.
//
// A Router is built once at startup from the discovered data files and never
// changes afterwards, so lookups take no locks. Each routed language owns
// exactly one worker.Actor, which serializes requests onto one long-lived
// worker process.
//
// Failure handling:
//   - Unknown language → worker.KindUnsupportedLanguage, no worker touched
//   - Spawn failure at startup → language routed to an unavailable actor,
//     every request fails with worker.KindWorkerUnavailable
//   - Worker dies → in-flight and queued requests fail, the actor stays dead
//   - Undecodable response line → worker.KindProtocolViolation for that
//     request only
//
// There is no retry, respawn or load balancing.
package dispatch
