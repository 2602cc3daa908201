// Package quotes implements the broker REST client used to fetch
// batched quote snapshots. The snapshot poller feeds these into the
// tick store, where the last-timestamp-wins rule keeps a fresher live
// tick from being clobbered by an older snapshot.
package quotes
