package translator

import (
	"strings"
	"testing"

	"pgregory.net/rapid"

	"qwen-bridge/internal/toolcall"
)

// Chunk boundary invariance: the vendor may split the SSE byte stream at any
// position. Feeding the same bytes as one chunk or as arbitrary sub-chunks
// must produce the same buffered text and the same final state.

func buildStream(deltas []string, tail string) []byte {
	var b strings.Builder
	b.WriteString(`data: {"response.created":{"parent_id":"p-prop","response_id":"r-prop"}}` + "\n")
	for _, delta := range deltas {
		b.WriteString(`data: {"choices":[{"delta":{"content":"` + delta + `"}}]}` + "\n")
	}
	b.WriteString(`data: {"choices":[{"delta":{"content":"` + tail + `","status":"finished"}}]}` + "\n")
	return []byte(b.String())
}

func TestStreamingTranslator_ChunkSplitInvariance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// JSON-safe content fragments
		fragment := rapid.StringMatching(`[a-zA-Z0-9 .,!?]{0,20}`)
		deltas := rapid.SliceOfN(fragment, 0, 10).Draw(t, "deltas")
		tail := fragment.Draw(t, "tail")

		stream := buildStream(deltas, tail)

		// Reference: the whole stream in one Feed call
		reference := NewStreamingTranslator("qwen3-max", toolcall.NewExtractor(nil))
		_, err := reference.Feed(stream)
		if err != nil {
			t.Fatalf("reference feed failed: %v", err)
		}

		// Subject: the same bytes split at random positions
		subject := NewStreamingTranslator("qwen3-max", toolcall.NewExtractor(nil))
		rest := stream
		for len(rest) > 0 {
			n := rapid.IntRange(1, len(rest)).Draw(t, "chunkSize")
			if _, err := subject.Feed(rest[:n]); err != nil {
				t.Fatalf("subject feed failed: %v", err)
			}
			rest = rest[n:]
		}

		if reference.State() != subject.State() {
			t.Fatalf("state mismatch: reference %v, subject %v", reference.State(), subject.State())
		}
		if reference.BufferedText() != subject.BufferedText() {
			t.Fatalf("buffered text mismatch:\nreference: %q\nsubject:   %q",
				reference.BufferedText(), subject.BufferedText())
		}

		refParent, refOK := reference.ParentID()
		subParent, subOK := subject.ParentID()
		if refOK != subOK || refParent != subParent {
			t.Fatalf("parent id mismatch: reference (%q,%v), subject (%q,%v)", refParent, refOK, subParent, subOK)
		}

		expected := strings.Join(deltas, "") + tail
		if subject.BufferedText() != expected {
			t.Fatalf("buffered text %q does not match concatenated deltas %q", subject.BufferedText(), expected)
		}
	})
}
