package ingestion

import "context"

// Extraction is the product of a successful extraction pipeline.
type Extraction struct {
	Text      string
	PageCount int
}

// stage is one attempt in an ordered fallback chain. ok=false hands control
// to the next stage; reason feeds the terminal placeholder's categorization.
type stage struct {
	name string
	run  func(ctx context.Context) (out Extraction, ok bool, reason string)
}

// runChain evaluates stages in order until one succeeds. The caller appends a
// placeholder stage that always succeeds, so the chain as a whole cannot
// fail; reasons from failed stages are returned for diagnostics.
func runChain(ctx context.Context, stages []stage) (Extraction, string, []string) {
	var reasons []string
	for _, s := range stages {
		out, ok, reason := s.run(ctx)
		if ok {
			return out, s.name, reasons
		}
		if reason != "" {
			reasons = append(reasons, s.name+": "+reason)
		}
	}
	// Unreachable when the chain is terminated by a placeholder stage.
	return Extraction{}, "", reasons
}
