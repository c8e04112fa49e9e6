package interview

import "strings"

// corrections rewrites known transcription confusions before anything is
// persisted. The speech service reliably mis-hears 志望動機 ("motivation for
// applying") as the phonetically identical 死亡動機.
var corrections = map[string]string{
	"死亡動機": "志望動機",
	"脂肪動機": "志望動機",
}

// blocklist marks transcripts for human review. A hit never interrupts the
// call; it only sets the compliance flag on the review row.
var blocklist = []string{
	"死ね",
	"馬鹿",
	"暴力",
	"脅迫",
	"差別",
}

// CorrectTranscript applies the deterministic correction table.
func CorrectTranscript(text string) string {
	for from, to := range corrections {
		text = strings.ReplaceAll(text, from, to)
	}
	return text
}

// CheckCompliance reports whether the (already corrected) transcript
// contains any blocked token.
func CheckCompliance(text string) bool {
	for _, w := range blocklist {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
