// Package receipt renders committed payments as printable text receipts and mails them to guardians.
// Rendering only reads the ledger; it can be repeated any number of times for the same payment.
package receipt

import (
	"bytes"
	"context"
	"net/mail"
	"text/template"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/payment"
	"github.com/trezcool/ada/core/student"
)

var receiptTmpl = template.Must(template.New("receipt").Funcs(template.FuncMap{
	"money": core.FormatMoney,
	"date":  func(t time.Time) string { return t.Format("2006-01-02") },
}).Parse(`{{.School}}
OFFICIAL RECEIPT No. {{.Payment.ReceiptNumber}}

Date paid:   {{date .Payment.PaidOn}}
Student:     {{.Student.Name}} ({{.Student.AdmissionNumber}}){{if .Student.ClassName}}
Class:       {{.Student.ClassName}}{{end}}
Instrument:  {{.Payment.Instrument}}{{if .Payment.ReferenceCode}}
Reference:   {{.Payment.ReferenceCode}}{{end}}{{with .Payment.Contribution}}
Quantity:    {{.Quantity.String}} kg @ {{money .RateApplied}}{{end}}
Amount:      {{money .Payment.Amount}}

Total fees:  {{money .Statement.Expected}}
Total paid:  {{money .Statement.Paid}}
Balance:     {{money .Statement.Balance}}
`))

type (
	Payments interface {
		PaymentByReceipt(ctx context.Context, receiptNo string) (payment.Payment, error)
		Statement(ctx context.Context, studentID int64) (payment.Statement, error)
	}

	Students interface {
		GetByID(ctx context.Context, id int64, exec ...core.DBExecutor) (student.Student, error)
	}

	Renderer struct {
		school   string
		payments Payments
		students Students
	}

	data struct {
		School    string
		Payment   payment.Payment
		Student   student.Student
		Statement payment.Statement
	}
)

func NewRenderer(school string, payments Payments, students Students) *Renderer {
	return &Renderer{school: school, payments: payments, students: students}
}

// Render returns the text receipt of a committed payment. The balance shown is the current one.
func (r *Renderer) Render(ctx context.Context, receiptNo string) (string, error) {
	p, err := r.payments.PaymentByReceipt(ctx, receiptNo)
	if err != nil {
		return "", err
	}
	return r.render(ctx, p)
}

func (r *Renderer) render(ctx context.Context, p payment.Payment) (string, error) {
	std, err := r.students.GetByID(ctx, p.StudentID)
	if err != nil {
		return "", errors.Wrap(err, "getting student")
	}
	st, err := r.payments.Statement(ctx, p.StudentID)
	if err != nil {
		return "", errors.Wrap(err, "computing statement")
	}

	var buf bytes.Buffer
	if err = receiptTmpl.Execute(&buf, data{School: r.school, Payment: p, Student: std, Statement: st}); err != nil {
		return "", errors.Wrap(err, "executing receipt template")
	}
	return buf.String(), nil
}

// Mailer e-mails the receipt of every recorded payment to the student's guardian,
// when the guardian contact is an e-mail address.
type Mailer struct {
	renderer *Renderer
	mailSvc  core.EmailService
	logger   core.Logger
}

var _ payment.Notifier = (*Mailer)(nil)

func NewMailer(renderer *Renderer, mailSvc core.EmailService, logger core.Logger) *Mailer {
	return &Mailer{renderer: renderer, mailSvc: mailSvc, logger: logger}
}

func (m *Mailer) PaymentRecorded(ctx context.Context, p payment.Payment) {
	std, err := m.renderer.students.GetByID(ctx, p.StudentID)
	if err != nil {
		m.logger.Error("receipt mail: getting student", err)
		return
	}
	addr, ok := core.ParseEmail(std.GuardianContact)
	if !ok {
		return // phone number
	}

	body, err := m.renderer.render(ctx, p)
	if err != nil {
		m.logger.Error("receipt mail: rendering", err, map[string]interface{}{"receipt": p.ReceiptNumber})
		return
	}
	m.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{addr},
		Subject: m.renderer.school + " receipt " + p.ReceiptNumber,
		BodyStr: body,
	})
}
