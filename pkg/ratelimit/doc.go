// Package ratelimit bounds how many requests a key may issue per window.
//
// MemoryLimiter is a token bucket held in process. RedisLimiter is a fixed
// window counter shared by every replica. Middleware applies either to an
// HTTP handler and fails open when the limiter errors.
package ratelimit
