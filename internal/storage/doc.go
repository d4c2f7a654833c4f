// Package storage persists relayed form submissions.
//
// The default backend is a single JSON object on disk mapping a receive
// timestamp to the submitted fields. Each append is a full read, merge and
// rewrite of the file. A SQLite backend with the same merge rules is available
// for deployments that prefer a database file.
package storage
