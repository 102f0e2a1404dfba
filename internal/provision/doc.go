// Package provision implements the student provisioning workflow: the
// submitter routes requests through the queue or the synchronous path
// according to the system mode, the provisioner executes the account
// creation step sequence with retries and compensating rollback, and
// the guard prevents a retried job from creating duplicate records.
package provision
