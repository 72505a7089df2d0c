// Package redis implements store.Store on Redis with go-redis/v9. Each job
// is a Hash; Sorted Sets scored by creation time index the jobs overall and
// per state. Every state change runs as a Lua script so the check and the
// write are a single atomic step on the server.
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
