// Package governance coordinates runtime safety controls for the answer
// gateway: bounded retries with exponential backoff for upstream calls, and a
// shared counting semaphore that caps concurrent metadata lookups.
//
// The request pipeline depends on these primitives to protect upstream
// services without introducing extra infrastructure coupling.
package governance
