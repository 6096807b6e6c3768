package core

import "net/mail"

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Subject string
		BodyStr string // text/plain
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return m.BodyStr != "" }

// ParseEmail returns the address if s is a valid e-mail address.
func ParseEmail(s string) (mail.Address, bool) {
	s = CleanString(s)
	if s == "" {
		return mail.Address{}, false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr == nil {
		return mail.Address{}, false
	}
	return *addr, true
}
