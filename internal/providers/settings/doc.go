// Package settings provides the key/value settings collaborator.
//
// Keys are "{identity}:{property}" or "{identity}:{client}:{property}";
// values are JSON encoded with bytedance/sonic through GetValue and SetValue.
// Memory backs tests and headless runs, SQLite backs the real host, and
// Cached fronts either with a read-through cache.
package settings
