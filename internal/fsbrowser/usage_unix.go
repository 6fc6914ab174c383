//go:build linux || darwin

package fsbrowser

import "golang.org/x/sys/unix"

// Usage reports the capacity of the filesystem holding the root.
func (b *Browser) Usage() (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(b.Root, &st); err != nil {
		return Usage{}, err
	}
	bsize := uint64(st.Bsize)
	total := uint64(st.Blocks) * bsize
	free := uint64(st.Bavail) * bsize
	used := total - uint64(st.Bfree)*bsize
	return Usage{Total: total, Used: used, Free: free}, nil
}
