// Typed caches with a fixed TTL and purging, backed by redis or in-process memory.
//
// The policy layer keeps group policies and the filter term list here, to avoid a database read on every inbound message.
package cachestore
