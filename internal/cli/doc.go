// Package cli implements the dialogmesh command line: replaying train
// dialogs, inspecting stored entity memory and printing the version.
package cli
