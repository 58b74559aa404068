// Package fs abstracts the file operations of the local swap store so tests
// can inject I/O failures.
//
//   - [LocalFS]: the os package, exposed as [Default].
//   - [FaultyFS]: wraps another FileSystem and fails writes, syncs, closes,
//     renames or removes of paths that match a rule.
//
// Operations take no context.Context: local file calls are not interruptible
// at the syscall level. Remote stores live in the blobstore packages.
package fs
