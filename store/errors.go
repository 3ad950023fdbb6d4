package store

import "log"

// fatalf logs a diagnostic and terminates the process. This is the only
// designated fatal path in the store package (spec.md §7: IOFailure and
// Corruption are fatal; nothing in the base Put/Get API is recoverable,
// so there is nothing for a caller to retry). Put and Get themselves
// return errors instead of calling this, leaving the termination decision
// to the caller - cmd/kvcli is the one that invokes MustOpen.
var fatalf = log.Fatalf
