// Package health implements the health monitor: a fixed set of probes
// against the remote aggregate procedures, an aggregate status, and a
// blocking wait-until-healthy loop with capped exponential backoff used
// by operational tooling while the schema cache propagates.
package health
