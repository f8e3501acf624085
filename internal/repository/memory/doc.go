// Package memory implements the repository interfaces in process memory.
//
// It backs tests and local runs with database.driver set to "memory".
// Every operation takes the store mutex, which gives the same atomicity the
// MongoDB driver gets from conditional single-document updates and unique
// indexes. Returned values are copies; mutating them never changes the store.
package memory
