package receipt_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/fee"
	"github.com/trezcool/ada/core/payment"
	"github.com/trezcool/ada/core/receipt"
	"github.com/trezcool/ada/core/student"
	"github.com/trezcool/ada/testutil/dbtest"
)

type outbox struct {
	mu       sync.Mutex
	messages []*core.EmailMessage
}

func (o *outbox) SendMessages(messages ...*core.EmailMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, messages...)
}

func TestRenderer_Render(t *testing.T) {
	env := dbtest.NewEnv(t)
	ctx := context.Background()
	cls := env.CreateClass(t, "Grade 3")
	std := env.CreateStudent(t, "ADM001", "Amani Baraka", cls.ID)
	_, err := env.Fees.SetObligation(ctx, 1, std.ID, fee.NewObligation{TotalFees: decimal.NewFromInt(1000)})
	require.NoError(t, err)

	paidOn := time.Date(2024, time.February, 14, 0, 0, 0, 0, time.UTC)
	cash, err := env.Payments.RecordPayment(ctx, payment.NewPayment{
		StudentID: std.ID, Amount: decimal.NewFromInt(500), Instrument: payment.InstrumentMobileMoney,
		ReferenceCode: "MP123", PaidOn: paidOn, RecorderID: 1,
	})
	require.NoError(t, err)
	maize, err := env.Payments.RecordContribution(ctx, payment.NewContribution{
		StudentID: std.ID, Commodity: "maize", Quantity: decimal.NewFromInt(10), PaidOn: paidOn, RecorderID: 1,
	})
	require.NoError(t, err)

	r := receipt.NewRenderer("Ada Primary School", env.Payments, env.Students)

	got, err := r.Render(ctx, cash.ReceiptNumber)
	require.NoError(t, err)
	want := `Ada Primary School
OFFICIAL RECEIPT No. ` + cash.ReceiptNumber + `

Date paid:   2024-02-14
Student:     Amani Baraka (ADM001)
Class:       Grade 3
Instrument:  mobile-money
Reference:   MP123
Amount:      500.00

Total fees:  1000.00
Total paid:  800.00
Balance:     200.00
`
	assert.Equal(t, want, got)

	again, err := r.Render(ctx, strings.ToLower(cash.ReceiptNumber))
	require.NoError(t, err)
	assert.Equal(t, got, again, "rendering is repeatable")

	got, err = r.Render(ctx, maize.ReceiptNumber)
	require.NoError(t, err)
	assert.Contains(t, got, "Instrument:  maize\nQuantity:    10 kg @ 30.00\nAmount:      300.00\n")
	assert.NotContains(t, got, "Reference:")

	_, err = r.Render(ctx, "00000000")
	assert.Equal(t, payment.ErrReceiptNotFound, errors.Cause(err))
}

func TestMailer_PaymentRecorded(t *testing.T) {
	env := dbtest.NewEnv(t)
	ctx := context.Background()
	box := new(outbox)
	r := receipt.NewRenderer("Ada Primary School", env.Payments, env.Students)
	env.Payments.SetNotifier(receipt.NewMailer(r, box, env.Logger))

	emailed, err := env.Students.Create(ctx, 1, student.NewStudent{
		AdmissionNumber: "ADM010", Name: "Asha", GuardianContact: "Mama Asha <mama.asha@example.com>",
	})
	require.NoError(t, err)
	phoned, err := env.Students.Create(ctx, 1, student.NewStudent{
		AdmissionNumber: "ADM011", Name: "Juma", GuardianContact: "+255 700 111 222",
	})
	require.NoError(t, err)

	rcpt, err := env.Payments.RecordPayment(ctx, payment.NewPayment{
		StudentID: emailed.ID, Amount: decimal.NewFromInt(50), Instrument: payment.InstrumentCash, RecorderID: 1,
	})
	require.NoError(t, err)
	_, err = env.Payments.RecordPayment(ctx, payment.NewPayment{
		StudentID: phoned.ID, Amount: decimal.NewFromInt(50), Instrument: payment.InstrumentCash, RecorderID: 1,
	})
	require.NoError(t, err)

	require.Len(t, box.messages, 1)
	msg := box.messages[0]
	assert.Equal(t, "mama.asha@example.com", msg.To[0].Address)
	assert.Equal(t, "Ada Primary School receipt "+rcpt.ReceiptNumber, msg.Subject)
	assert.Contains(t, msg.BodyStr, "OFFICIAL RECEIPT No. "+rcpt.ReceiptNumber)
	assert.Contains(t, msg.BodyStr, "Balance:     -50.00")
	assert.Zero(t, env.Logger.Count("ERROR"))
}
