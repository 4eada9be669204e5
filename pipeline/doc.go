// Package pipeline runs an image request through an ordered chain of
// interceptors: memory cache, depth check, result cache, fetch and the
// terminal decode engine.
//
// Interceptors are ordered by SortWeight (0..100, stable for equal
// weights). Weight 100 is reserved for the single terminal interceptor,
// which must produce a result without calling Proceed. Every other
// interceptor either short-circuits or calls Chain.Proceed exactly once.
//
// Stage-local conditions (cache miss, cache rejection, a tier disabled by
// policy) are handled inside the stage. Only terminal failures leave the
// chain: fetch and decode failures and depth violations, each a typed
// error usable with errors.Is.
package pipeline
