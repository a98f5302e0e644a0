package engine

import "os"

// interruptSignal is the signal sent to snapshot-engine subprocesses on
// cancellation. The engine is expected to treat SIGINT as "clean up and
// exit non-zero" (spec §4.1 cancellation semantics).
var interruptSignal = os.Interrupt
