package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ada/core/fee"
	"github.com/trezcool/ada/core/payment"
	"github.com/trezcool/ada/core/receipt"
	"github.com/trezcool/ada/core/student"
)

type (
	ledgerApi struct {
		students *student.Service
		fees     *fee.Service
		payments *payment.Service
		receipts *receipt.Renderer
	}

	PaymentRequest struct {
		Amount        decimal.Decimal `json:"amount"`
		Instrument    string          `json:"instrument"`
		ReferenceCode string          `json:"reference_code"`
		PaidOn        string          `json:"paid_on"` // YYYY-MM-DD, default today
	}

	ContributionRequest struct {
		Commodity string          `json:"commodity"`
		Quantity  decimal.Decimal `json:"quantity"` // kg
		PaidOn    string          `json:"paid_on"`
	}

	BoardingFeeRequest struct {
		Amount decimal.Decimal `json:"amount"`
	}

	BoardingFeeResponse struct {
		ClassID  int64 `json:"class_id"`
		Students int   `json:"students"`
	}
)

func registerLedgerAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts Options) {
	api := ledgerApi{
		students: opts.Students,
		fees:     opts.Fees,
		payments: opts.Payments,
		receipts: opts.Receipts,
	}

	// no sub-group: a group with middleware would shadow GET /students/:id
	g.GET("/students/:id/obligation", api.obligation, jwt)
	g.PUT("/students/:id/obligation", api.setObligation, jwt)
	g.GET("/students/:id/balance", api.balance, jwt)
	g.GET("/students/:id/payments", api.queryPayments, jwt)
	g.POST("/students/:id/payments", api.recordPayment, jwt)
	g.POST("/students/:id/contributions", api.recordContribution, jwt)

	g.GET("/receipts/:number", api.receipt, jwt)
	g.PUT("/classes/:id/boarding-fee", api.applyBoardingFee, jwt, adminMiddleware)
}

// studentID reads the :id path parameter of an existing student.
func (api *ledgerApi) studentID(ctx echo.Context) (int64, error) {
	id, err := pathID(ctx, "id")
	if err != nil {
		return 0, err
	}
	if err = api.students.Exists(ctx.Request().Context(), id); err != nil {
		return 0, errors.Wrap(err, "checking student")
	}
	return id, nil
}

func (api *ledgerApi) obligation(ctx echo.Context) error {
	id, err := api.studentID(ctx)
	if err != nil {
		return err
	}
	ob, err := api.fees.GetObligation(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting obligation")
	}
	return ctx.JSON(http.StatusOK, ob)
}

func (api *ledgerApi) setObligation(ctx echo.Context) error {
	actor, err := actorID(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var data fee.NewObligation
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewObligation")
	}

	ob, err := api.fees.SetObligation(ctx.Request().Context(), actor, id, data)
	if err != nil {
		return errors.Wrap(err, "setting obligation")
	}
	return ctx.JSON(http.StatusOK, ob)
}

func (api *ledgerApi) balance(ctx echo.Context) error {
	id, err := api.studentID(ctx)
	if err != nil {
		return err
	}
	st, err := api.payments.Statement(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "computing balance")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *ledgerApi) queryPayments(ctx echo.Context) error {
	id, err := api.studentID(ctx)
	if err != nil {
		return err
	}
	page, err := queryPage(ctx)
	if err != nil {
		return err
	}
	payments, err := api.payments.PaymentsForStudent(ctx.Request().Context(), id, page)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *ledgerApi) recordPayment(ctx echo.Context) error {
	actor, err := actorID(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var data PaymentRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PaymentRequest")
	}
	paidOn, err := parseDate("paid_on", data.PaidOn)
	if err != nil {
		return err
	}

	rcpt, err := api.payments.RecordPayment(ctx.Request().Context(), payment.NewPayment{
		StudentID:     id,
		Amount:        data.Amount,
		Instrument:    data.Instrument,
		ReferenceCode: data.ReferenceCode,
		PaidOn:        paidOn,
		RecorderID:    actor,
	})
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusCreated, rcpt)
}

func (api *ledgerApi) recordContribution(ctx echo.Context) error {
	actor, err := actorID(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var data ContributionRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ContributionRequest")
	}
	paidOn, err := parseDate("paid_on", data.PaidOn)
	if err != nil {
		return err
	}

	rcpt, err := api.payments.RecordContribution(ctx.Request().Context(), payment.NewContribution{
		StudentID:  id,
		Commodity:  data.Commodity,
		Quantity:   data.Quantity,
		PaidOn:     paidOn,
		RecorderID: actor,
	})
	if err != nil {
		return errors.Wrap(err, "recording contribution")
	}
	return ctx.JSON(http.StatusCreated, rcpt)
}

func (api *ledgerApi) receipt(ctx echo.Context) error {
	text, err := api.receipts.Render(ctx.Request().Context(), ctx.Param("number"))
	if err != nil {
		return errors.Wrap(err, "rendering receipt")
	}
	return ctx.String(http.StatusOK, text)
}

func (api *ledgerApi) applyBoardingFee(ctx echo.Context) error {
	actor, err := actorID(ctx)
	if err != nil {
		return err
	}
	classID, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var data BoardingFeeRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BoardingFeeRequest")
	}

	n, err := api.fees.ApplyBoardingFeeToClass(ctx.Request().Context(), actor, classID, data.Amount)
	if err != nil {
		return errors.Wrap(err, "applying boarding fee")
	}
	return ctx.JSON(http.StatusOK, BoardingFeeResponse{ClassID: classID, Students: n})
}
