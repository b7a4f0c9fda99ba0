//go:build unix

package fits

import (
	"os"

	"golang.org/x/sys/unix"
)

func mmapFile(file *os.File, size int64, writable bool) ([]byte, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	return unix.Mmap(int(file.Fd()), 0, int(size), prot, unix.MAP_SHARED)
}

func munmapFile(b []byte) error {
	return unix.Munmap(b)
}

func msyncFile(b []byte) error {
	return unix.Msync(b, unix.MS_SYNC)
}
