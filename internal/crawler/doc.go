// Package crawler defines the domain model shared by the harvester: per-domain
// crawl configuration, strategy results, checkpoints and the narrow interfaces
// the orchestrator uses to reach fetchers, stores and collaborators.
package crawler
