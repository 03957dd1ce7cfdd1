package flow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// fingerprint is a deterministic function of (name, version,
// canonical-rendering(resolved-inputs)). Canonical rendering is
// order-independent for maps, order-preserving for sequences, and descends
// into node references by substituting the referent's fingerprint rather
// than its value — so two graphs with structurally identical wiring and
// literal values hash identically without re-reading large blobs.
func fingerprint(name, version string, resolved map[string]any) (string, error) {
	rendered, err := canonicalRender(resolved)
	if err != nil {
		return "", fmt.Errorf("flow: canonical rendering failed: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(version))
	h.Write([]byte{0})
	h.Write(rendered)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// nodeRef is the canonical stand-in for a resolved input that came from
// another node: only the referent's fingerprint participates in the hash,
// never its value.
type nodeRef struct {
	FP string `json:"$ref_fp"`
}

// canonicalRender produces a byte-stable JSON encoding of v: object keys
// are sorted, arrays keep their order, and refValue markers are rendered
// as their referent fingerprint.
func canonicalRender(v any) ([]byte, error) {
	norm, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(norm)
}

// refValue marks a resolved input that is a reference to another node's
// current output; it carries the referent's fingerprint, not its value.
type refValue struct {
	fp string
}

func (r refValue) canonical() any { return nodeRef{FP: r.fp} }

// normalize walks v, producing a structure whose map keys are emitted in
// sorted order by the subsequent json.Marshal (Go already sorts map[string]
// keys when marshaling, so normalize's job is to convert everything to
// map[string]any/[]any/scalars and to substitute refValue markers).
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case refValue:
		return x.canonical(), nil
	case map[string]any:
		out := make(map[string]any, len(x))
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			nv, err := normalize(x[k])
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			nv, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	default:
		return v, nil
	}
}
