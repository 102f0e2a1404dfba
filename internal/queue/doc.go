// Package queue implements the durable in-process job queue that backs
// asynchronous provisioning. Jobs are persisted before they are
// dispatched, so a crash between accept and execution loses nothing:
// startup recovery re-queues every waiting job and resets jobs that
// were mid-flight. A background reaper returns jobs stuck in the active
// state to the queue, and terminal jobs are trimmed to a bounded
// retention count.
package queue
