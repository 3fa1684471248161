package batch

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/MikeSquared-Agency/stepwise/internal/transcript"
)

// fingerprint identifies a transcript by id and content, so the same
// conversation exported into several files is only analysed once.
func fingerprint(t transcript.Transcript) string {
	h := sha256.New()
	h.Write([]byte(t.ID))
	h.Write([]byte{0})
	for _, turn := range t.Turns {
		if turn.IsChatbot {
			h.Write([]byte{'c'})
		} else {
			h.Write([]byte{'u'})
		}
		h.Write([]byte(turn.Text))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// dedupe drops transcripts already seen in this run. Transcripts that failed
// to parse are always kept so their error is reported.
func dedupe(ts []transcript.Transcript, seen map[string]bool) (kept []transcript.Transcript, skipped int) {
	for _, t := range ts {
		if t.Err != nil {
			kept = append(kept, t)
			continue
		}
		fp := fingerprint(t)
		if seen[fp] {
			skipped++
			continue
		}
		seen[fp] = true
		kept = append(kept, t)
	}
	return kept, skipped
}
