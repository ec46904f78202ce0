package approval

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// IDLength is the number of hex characters kept in a request id.
const IDLength = 12

// RequestID derives the short, human-typeable id of a request from the draft
// content and the submission time. Identical drafts submitted at different
// instants get different ids; uniqueness is not otherwise guaranteed.
func RequestID(subject, body string, at time.Time) string {
	sum := md5.Sum([]byte(subject + body + at.Format(time.RFC3339Nano)))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:IDLength])
}
