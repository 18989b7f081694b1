package process

import "syscall"

// terminateSignal is the graceful-termination signal sent before escalating
// to a forced kill.
func terminateSignal() syscall.Signal {
	return syscall.SIGTERM
}
