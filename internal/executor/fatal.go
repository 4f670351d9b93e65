package executor

import "os"

// fatalExit terminates the process after too many consecutive mined-but-failed
// receipts. It is a var so tests can stub it out instead of actually exiting.
var fatalExit = func() {
	os.Exit(1)
}
