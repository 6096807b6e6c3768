package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ada/core/rate"
)

type (
	rateApi struct {
		svc *rate.Service
	}

	RateRequest struct {
		RatePerUnit decimal.Decimal `json:"rate_per_unit"`
	}
)

func registerRateAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *rate.Service) {
	api := rateApi{svc: svc}

	rg := g.Group("/rates", jwt)
	rg.GET("", api.query)
	rg.PUT("/:commodity", api.set, adminMiddleware)
}

func (api *rateApi) query(ctx echo.Context) error {
	rates, err := api.svc.ListRates(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing rates")
	}
	return ctx.JSON(http.StatusOK, rates)
}

func (api *rateApi) set(ctx echo.Context) error {
	actor, err := actorID(ctx)
	if err != nil {
		return err
	}
	var data RateRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RateRequest")
	}

	r, err := api.svc.SetRate(ctx.Request().Context(), actor, ctx.Param("commodity"), data.RatePerUnit)
	if err != nil {
		return errors.Wrap(err, "setting rate")
	}
	return ctx.JSON(http.StatusOK, r)
}
