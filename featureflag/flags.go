package featureflag

type Flag string

const (
	// FlagDisableDepthGuard restores unbounded refinement, matching the
	// historical behavior where coincident points recurse without limit.
	FlagDisableDepthGuard Flag = "DISABLE_DEPTH_GUARD"

	// FlagDisableParallelRefine refines root cells serially.
	FlagDisableParallelRefine Flag = "DISABLE_PARALLEL_REFINE"
)
