package chunks

import (
	"fmt"
	"os"
)

// debugChunks enables the expensive invariant checks (buddy-area tiling,
// maximal-merge verification) and turns assertion failures into panics.
// Compile-time toggle, off in production builds.
const debugChunks = false

// logChunkOps enables allocation tracing, controlled by environment so
// it can be switched on for a single run without rebuilding.
var logChunkOps = os.Getenv("METASPACE_LOG_ALLOC") != ""

// assertf guards programming errors. Invariant violations are bugs, not
// runtime conditions; there is no recovery path from internal
// corruption, so violations fail fast.
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic("chunks: " + fmt.Sprintf(format, args...))
	}
}

func tracef(format string, args ...any) {
	if logChunkOps {
		fmt.Fprintf(os.Stderr, "[chunks] "+format+"\n", args...)
	}
}
