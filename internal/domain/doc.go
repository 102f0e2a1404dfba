// Package domain defines the core business entities of the provisioning
// service: students, provisioning requests and jobs, the system mode flag,
// and health log entries. Entities validate themselves; persistence and
// transport concerns live elsewhere.
package domain
