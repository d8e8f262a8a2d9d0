//go:build !unix

package kv

import "os"

// Advisory locking is only available on unix; other platforms rely on the
// atomic rename alone.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
