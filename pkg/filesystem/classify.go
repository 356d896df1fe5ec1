package filesystem

import (
	"errors"
	"io/fs"
	"syscall"
)

// errorClass buckets an OS error into the recovery policy that applies to
// it. Only busy, disk-full and permission conditions are ever retried.
type errorClass int

const (
	classNone errorClass = iota
	classNotFound
	classBusy
	classDiskFull
	classPermission
	classOther
)

func classify(err error) errorClass {
	if err == nil {
		return classNone
	}
	if errors.Is(err, fs.ErrNotExist) {
		return classNotFound
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EBUSY, syscall.ETXTBSY, syscall.EAGAIN, syscall.EINTR:
			return classBusy
		case syscall.ENOSPC, syscall.EDQUOT:
			return classDiskFull
		case syscall.EACCES, syscall.EPERM:
			return classPermission
		}
	}

	if errors.Is(err, fs.ErrPermission) {
		return classPermission
	}
	return classOther
}
