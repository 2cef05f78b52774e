// Package memory keeps RAW conversion inside the container's memory budget.
//
// [ConfigureFromEnv] sets GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO (or
// leaves an explicit GOMEMLIMIT alone). Call it first thing in main:
//
//	func main() {
//	    memory.ConfigureFromEnv()
//	    // ...
//	}
//
// A [Monitor] then samples heap usage during conversion. Once usage crosses
// the critical mark, [Monitor.Wait] blocks new renders until usage falls
// below the high-water mark; renders already running are not interrupted.
// The converter takes the monitor as its gate:
//
//	mon := memory.NewMonitor(memory.DefaultConfig())
//	mon.Start()
//	defer mon.Stop()
//	conv := conversion.New(store, renderer, conversion.Config{Gate: mon})
package memory
