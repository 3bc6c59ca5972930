// Package engine contains the thirst decay loop and its supporting state.
//
// The Engine owns the per-survivor thirst state and drives it once per
// second through a Scheduler. Decay math lives in domain/thirst; durable
// persistence lives behind the storage repositories.
package engine
