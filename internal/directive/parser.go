// Package directive parses the scheduling commands the language model embeds
// in its replies. A reply carries a user-facing "message content" section and
// an optional "internal message" section; only the internal section is
// machine-readable, and it is never shown to the user.
package directive

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	contentDelimiter  = "------ message content ------"
	internalDelimiter = "------ internal message ------"
	internalEnd       = "------ internal message end ------"

	// TimeLayout is the wall-clock format the model must use for reminder
	// times. It carries no zone; the owner's timezone resolves it.
	TimeLayout = "2006-01-02 15:04:05"
)

var timePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)

// Kind discriminates the parsed directive variants.
type Kind int

const (
	// None means no actionable directive was present.
	None Kind = iota
	// New requests creation of a reminder.
	New
	// Cancel requests cancellation of a previously created reminder.
	Cancel
	// Malformed means an internal section was present but did not parse.
	Malformed
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case New:
		return "new"
	case Cancel:
		return "cancel"
	case Malformed:
		return "malformed"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Directive is the parsed internal-message command.
//
// For Kind == New, When holds the requested wall-clock time with no timezone
// attached (its Location is UTC purely as a carrier); use WhenIn to resolve
// it against the owning user's zone. For Kind == Cancel only ReminderText is
// set. For Kind == Malformed, Reason describes what failed to parse.
type Directive struct {
	Kind             Kind
	ReminderText     string
	When             time.Time
	NotificationText string
	Reason           string
}

// WhenIn resolves the zone-less wall-clock time into an absolute instant in
// the given location.
func (d Directive) WhenIn(loc *time.Location) time.Time {
	t := d.When
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}

// UserFacing extracts the reply text to show the user: the message-content
// section up to (but not including) the internal section. A reply without a
// content delimiter is returned whole, trimmed.
func UserFacing(reply string) string {
	_, rest, found := strings.Cut(reply, contentDelimiter)
	if !found {
		rest = reply
	}
	if body, _, ok := strings.Cut(rest, internalDelimiter); ok {
		rest = body
	}
	return strings.TrimSpace(rest)
}

// Parse extracts the directive from a model reply. It never fails: replies
// without an internal section (or with an empty one) yield None, and an
// internal section that matches none of the known shapes yields Malformed.
func Parse(reply string) Directive {
	_, rest, found := strings.Cut(reply, internalDelimiter)
	if !found {
		return Directive{Kind: None}
	}

	section := rest
	if body, _, ok := strings.Cut(rest, internalEnd); ok {
		section = body
	}
	section = strings.TrimSpace(section)

	switch {
	case section == "" || section == "NONE":
		return Directive{Kind: None}
	case strings.HasPrefix(section, "CANCEL"):
		return parseCancel(section)
	case len(section) >= 9 && strings.EqualFold(section[:9], "REMINDER:"):
		return parseReminder(section[9:])
	}
	return malformed("unrecognized internal message %q", section)
}

func parseCancel(section string) Directive {
	rest := section[len("CANCEL"):]
	if rest == "" || !isSpace(rest[0]) {
		return malformed("unrecognized internal message %q", section)
	}
	text := strings.TrimSpace(rest)
	if text == "" {
		return malformed("no reminder text after CANCEL")
	}
	return Directive{Kind: Cancel, ReminderText: text}
}

func parseReminder(rest string) Directive {
	parts := strings.SplitN(rest, ",", 3)
	if len(parts) != 3 {
		return malformed("reminder needs 3 comma-separated fields, got %d", len(parts))
	}

	reminderText := strings.TrimSpace(parts[0])
	whenStr := strings.TrimSpace(parts[1])
	notificationText := strings.TrimSpace(parts[2])

	if reminderText == "" || whenStr == "" || notificationText == "" {
		return malformed("incomplete reminder details")
	}

	if !timePattern.MatchString(whenStr) {
		return malformed("time %q does not match YYYY-MM-DD HH:MM:SS", whenStr)
	}

	when, err := time.Parse(TimeLayout, whenStr)
	if err != nil {
		return malformed("invalid time %q: %v", whenStr, err)
	}

	return Directive{
		Kind:             New,
		ReminderText:     reminderText,
		When:             when,
		NotificationText: notificationText,
	}
}

func malformed(format string, args ...any) Directive {
	return Directive{Kind: Malformed, Reason: fmt.Sprintf(format, args...)}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
