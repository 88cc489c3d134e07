// Package redis manages the connection to the Redis server that backs the
// shared session store.
//
// The package owns connection lifecycle only (dial, ping, health, close).
// Key layout and session semantics live in internal/auth.
//
// Usage:
//
//	client, err := redis.Connect(ctx, cfg.Redis)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	store := auth.NewRedisSessionStore(client.Client, logger)
package redis
