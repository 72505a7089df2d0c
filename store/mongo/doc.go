// Package mongo implements store.Store using the official MongoDB driver
// (v2). Jobs live in one collection keyed by job ID; every state change is
// a single UpdateOne filtered on the current state, which MongoDB applies
// atomically per document.
//
//	s, _ := mongo.Open(ctx, "mongodb://localhost:27017", mongo.WithDatabase("queuectl"))
//	defer s.Close()
//	_ = s.Migrate(ctx)
package mongo
