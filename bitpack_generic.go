//go:build !amd64 || purego

package decpack

// initLaneDispatch keeps the portable scalar implementations.
func initLaneDispatch() {}
