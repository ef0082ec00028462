package mapping

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

// tagPattern also accepts the "[OTRS: n]" form written by older relay builds.
var tagPattern = regexp.MustCompile(`\[OTRS:?\s*(\d+)\]`)

var (
	digitsPattern = regexp.MustCompile(`^\d+$`)
	anglePattern  = regexp.MustCompile(`<([^<>]+)>`)
)

// Tag renders the correlation marker for an on-premise ticket number.
func Tag(ticketNumber string) string {
	return fmt.Sprintf("[OTRS %s]", ticketNumber)
}

// ParseTag extracts the first ticket number tagged in s.
func ParseTag(s string) (string, bool) {
	m := tagPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Subject builds the service-desk subject for a ticket forwarded from the on-premise side.
func Subject(ticketNumber, title string) string {
	return Tag(ticketNumber) + " " + title
}

// RenamedSubject is written back on a service-desk request after its on-premise twin is created.
func RenamedSubject(ticketNumber, title string) string {
	return Tag(ticketNumber) + " Novo chamado: " + title
}

// TitleFromSubject strips the tag (and the rename prefix) from a subject.
func TitleFromSubject(subject string) string {
	loc := tagPattern.FindStringIndex(subject)
	if loc == nil {
		return strings.TrimSpace(subject)
	}
	title := strings.TrimSpace(subject[:loc[0]] + subject[loc[1]:])
	return strings.TrimSpace(strings.TrimPrefix(title, "Novo chamado:"))
}

// ValidTicketNumber reports whether n can be embedded in and parsed back from a tag.
func ValidTicketNumber(n string) bool {
	return digitsPattern.MatchString(n)
}

// ExtractEmail pulls the address out of a From header such as "Name <a@b.c>".
func ExtractEmail(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	if m := anglePattern.FindStringSubmatch(from); m != nil {
		return strings.TrimSpace(m[1])
	}
	if strings.Contains(from, "@") && !strings.ContainsAny(from, " \t") {
		return from
	}
	return ""
}
