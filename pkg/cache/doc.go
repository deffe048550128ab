// Package cache provides a Redis-backed outcome cache for record fetches.
//
// Fetcher wraps another fetch.Fetcher. Found records and absent markers are
// stored in Redis so that re-running a batch does not hit the remote source
// again; failures are never cached.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	cached := cache.NewFetcher(httpClient, redisClient, cache.Config{
//		Prefix: "batchdl",
//		TTL:    24 * time.Hour,
//	})
//
//	record, err := cached.Fetch(ctx, 42)
//
// # Storage Format
//
// Keys have the form <prefix>:record:<id>. A found record is stored as a
// JSON object of strings, an absent item as the JSON literal null.
//
// # Degradation
//
// Redis errors never fail an item. A failed lookup falls through to the
// wrapped fetcher and a failed store is only logged and counted.
//
// # Metrics
//
//   - batchdl_cache_hits_total{kind} - Cache hits by outcome kind
//   - batchdl_cache_misses_total - Cache misses
//   - batchdl_cache_stored_bytes_total - Bytes written to Redis
//   - batchdl_cache_errors_total{operation} - Cache operation errors
package cache
