// Copyright (C) 2019-2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package valuecache provides a process-wide registry of per-value-type
// LRU caches, reachable with GetCache[V], each supporting alternate keys
// and batched change notifications delivered through RegisterChangeHandler.
package valuecache
