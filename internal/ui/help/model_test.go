package help

import (
	"strings"
	"testing"

	"github.com/nhle/inbox-triage/internal/keys"
)

func TestViewListsReplyKeywords(t *testing.T) {
	view := New(keys.DefaultKeyMap(), 100, 40).View()

	for _, want := range []string{"Keyboard Shortcuts", "approve", "APPROVED", "REJECTED"} {
		if !strings.Contains(view, want) {
			t.Errorf("help view missing %q", want)
		}
	}
}
