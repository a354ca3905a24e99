// Package shaping implements the directional pipes that emulate
// latency and bandwidth between the two halves of a proxied connection.
//
// A [Pipe] is a FIFO of [Message] values. Each message is stamped with
// a due time when it is enqueued and a [Pipe] only releases the head of
// the queue once it is due and the bandwidth budget can afford it, so
// latency and bandwidth delay messages but never reorder them.
package shaping
