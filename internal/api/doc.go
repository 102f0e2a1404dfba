// Package api contains the HTTP handlers for the provisioning service:
// student submission, the operator mode switch, queue metrics, the
// health log feed, and the health probe endpoint.
package api
