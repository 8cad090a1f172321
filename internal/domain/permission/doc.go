// Package permission stores and arbitrates per-widget, per-scope grants.
//
// Keys are (subject, scope) pairs where the subject is either one widget
// identity or the whole process. The default for every key is Undefined,
// which grants nothing. Grants happen only through a consent answer or an
// administrative override, and a revocation stays in force until one of
// those happens again.
//
// Persistence failures never widen access: the key is recorded as Denied
// in memory, the failure is logged and counted, and the caller sees Denied.
package permission
