// Package graph maintains the workspace link and tag graphs. The
// materializer feeds it freshly rendered Markdown; extraction failures are
// the caller's to swallow, persistence goes through the store.
package graph
