// Package snapshot periodically fetches quote snapshots for every
// subscribed token and merges them into the tick store. The store's
// last-timestamp-wins rule arbitrates between snapshots and the live
// stream, so polling is always safe to run alongside the feed.
package snapshot
