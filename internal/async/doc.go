// Package async provides the suspension primitives the gateway and REST
// pipelines are built on.
//
// Every blocking operation takes a context.Context and gives up as soon as the
// context ends. Waiters are always served in FIFO order, and closing a
// primitive releases its waiters instead of leaving them blocked.
//
//   - Future: a manually completed value.
//   - Semaphore: counting semaphore with a bounded maximum.
//   - AutoResetEvent: single-slot signal that is consumed by the waiter it wakes.
//   - Unbounded: unbounded FIFO channel with a one-way completed state.
//   - Emitter: named pub/sub with serialized registration and lock-free emission.
package async
