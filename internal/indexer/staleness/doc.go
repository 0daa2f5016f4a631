// Package staleness decides whether an index snapshot still reflects the
// corpus on disk.
//
// The Poller re-scans the corpus and compares (path, modification time)
// sets; it is exact and runs on every query. The Watcher listens to
// fsnotify events and only re-scans after something under the root changed,
// falling back to the Poller when event delivery is unavailable.
package staleness
