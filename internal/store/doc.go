// Package store defines the persistence interfaces of the provisioning
// service and the sentinel errors shared by their implementations. The
// concrete postgres implementations live in internal/platform/postgres.
package store
