package flow

// constantKindName is the synthetic processor-kind name given to constant
// nodes for fingerprinting and logging purposes; constants have no
// ProcessorKind of their own.
const constantKindName = "const"

// constantFingerprint computes a constant node's fingerprint directly from
// its value: a constant has no declared inputs, so its fingerprint is the
// canonical rendering of the value itself, under the synthetic name
// constantKindName and an empty version. Bumping a constant's value therefore changes its fingerprint
// and transitively invalidates every descendant's cache entry the next time
// RunUpTo resolves through it — no explicit invalidation bookkeeping is
// needed.
func constantFingerprint(value any) (string, error) {
	return fingerprint(constantKindName, "", map[string]any{"value": value})
}

// setConstant assigns n's value and refreshes its cached fingerprint. It is
// the only supported way to drive a new item through an existing graph
// between runs: callers mutate constants and re-invoke RunUpTo or the
// BatchRunner.
func (n *node) setConstant(value any) error {
	fp, err := constantFingerprint(value)
	if err != nil {
		return err
	}
	n.constantVal = value
	n.constantFP = fp
	return nil
}
