package emailsvc

import (
	"fmt"
	"io"
	"log"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/trezcool/ada/core"
)

// ConsoleService writes e-mails to a std logger instead of sending them. Used in development.
type ConsoleService struct {
	from       mail.Address
	subjPrefix string
	out        *log.Logger
	sync       bool // send in the caller's goroutine

	mu   sync.Mutex
	sent []core.EmailMessage
}

var _ core.EmailService = (*ConsoleService)(nil)

func NewConsoleService(conf *core.Config, out *log.Logger) *ConsoleService {
	return &ConsoleService{
		from:       fromAddress(conf),
		subjPrefix: "[" + conf.AppName + "] ",
		out:        out,
	}
}

// NewConsoleServiceMock returns a silent console service sending synchronously.
func NewConsoleServiceMock(conf *core.Config) *ConsoleService {
	svc := NewConsoleService(conf, log.New(io.Discard, "", 0))
	svc.sync = true
	return svc
}

func (svc *ConsoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		if svc.sync {
			svc.sendMessage(*msg)
		} else {
			go svc.sendMessage(*msg)
		}
	}
}

// Sent returns the messages written so far.
func (svc *ConsoleService) Sent() []core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]core.EmailMessage(nil), svc.sent...)
}

func (svc *ConsoleService) sendMessage(msg core.EmailMessage) {
	if !msg.HasRecipients() || !msg.HasContent() {
		return
	}
	svc.out.Println(svc.format(msg))

	svc.mu.Lock()
	svc.sent = append(svc.sent, msg)
	svc.mu.Unlock()
}

func (svc *ConsoleService) format(msg core.EmailMessage) string {
	body := new(strings.Builder)

	// Write mail header
	_, _ = fmt.Fprintf(body, "From: %s\r\n", svc.from.String())
	_, _ = fmt.Fprint(body, "MIME-Version: 1.0\r\n")
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.subjPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n", joinAddresses(msg.To))
	if len(msg.Cc) > 0 {
		_, _ = fmt.Fprintf(body, "CC: %s\r\n", joinAddresses(msg.Cc))
	}
	_, _ = fmt.Fprint(body, "Content-Type: text/plain; charset=utf-8\r\n\r\n")
	_, _ = fmt.Fprint(body, msg.BodyStr)
	return body.String()
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}

func fromAddress(conf *core.Config) mail.Address {
	if addr, ok := core.ParseEmail(conf.DefaultFromEmail); ok {
		if addr.Name == "" {
			addr.Name = conf.AppName
		}
		return addr
	}
	return mail.Address{Name: conf.AppName, Address: "noreply@localhost"}
}
