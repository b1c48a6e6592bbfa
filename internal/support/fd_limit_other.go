//go:build !unix

package support

func FileDescriptorLimit() uint64 {
	return 0
}
