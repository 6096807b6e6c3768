package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ada/core/audit"
	"github.com/trezcool/ada/core/report"
)

type reportApi struct {
	svc   *report.Service
	audit AuditQuerier
}

func registerReportAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *report.Service, trail AuditQuerier) {
	api := reportApi{svc: svc, audit: trail}

	rg := g.Group("/reports", jwt)
	rg.GET("/arrears", api.arrears)
	rg.GET("/collections", api.collections)

	g.GET("/audit", api.auditTrail, jwt, adminMiddleware)
}

func (api *reportApi) arrears(ctx echo.Context) error {
	classID, err := queryClassID(ctx)
	if err != nil {
		return err
	}
	owing, err := queryBool(ctx, "owing")
	if err != nil {
		return err
	}

	res, err := api.svc.Arrears(ctx.Request().Context(), classID, owing)
	if err != nil {
		return errors.Wrap(err, "computing arrears")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *reportApi) collections(ctx echo.Context) error {
	classID, err := queryClassID(ctx)
	if err != nil {
		return err
	}
	from, err := queryDate(ctx, "from")
	if err != nil {
		return err
	}
	to, err := queryDate(ctx, "to")
	if err != nil {
		return err
	}

	res, err := api.svc.Collections(ctx.Request().Context(), from, to, classID)
	if err != nil {
		return errors.Wrap(err, "summing collections")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *reportApi) auditTrail(ctx echo.Context) error {
	actor, err := queryInt(ctx, "actor_id")
	if err != nil {
		return err
	}
	from, err := queryDate(ctx, "from")
	if err != nil {
		return err
	}
	to, err := queryDate(ctx, "to")
	if err != nil {
		return err
	}
	if !to.IsZero() {
		to = to.Add(24*time.Hour - time.Nanosecond) // whole day
	}
	page, err := queryPage(ctx)
	if err != nil {
		return err
	}

	entries, err := api.audit.Query(ctx.Request().Context(), audit.Filter{
		ActorID: actor,
		Search:  ctx.QueryParam("search"),
		From:    from,
		To:      to,
		Page:    page,
	})
	if err != nil {
		return errors.Wrap(err, "querying audit trail")
	}
	return ctx.JSON(http.StatusOK, entries)
}
