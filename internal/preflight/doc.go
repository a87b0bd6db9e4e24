// Package preflight checks that chatlens can index and serve before it
// starts: the conversations file parses, the data directory is writable
// and has room, the embedding provider answers, and the embedding cache
// matches the configured model.
//
//	checker := preflight.New(
//	    preflight.WithConversationsFile(cfg.Paths.ConversationsFile),
//	    preflight.WithDataDir(cfg.Paths.DataDir),
//	    preflight.WithEmbedder(embedder),
//	)
//	results := checker.RunAll(ctx)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
