package directive

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ReminderID derives the stable identifier for a reminder from its
// descriptive text alone. A later CANCEL directive carrying the same text
// resolves to the same id, which is what lets it address a reminder created
// earlier without the model ever seeing an opaque id. The hash is
// deterministic across restarts.
func ReminderID(reminderText string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(reminderText)))
	return hex.EncodeToString(sum[:8])
}
