// Package git provides git integration status checks for dekvault.
//
// When the data directory sits inside a git work tree, the vault database
// and a file-backed remote store should be ignored, never tracked.
// The checks shell out to the git binary and degrade to "not a
// repository" when git is unavailable.
package git
