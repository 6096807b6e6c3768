package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/ada/core"
)

const dateLayout = "2006-01-02"

// pathID reads a positive integer path parameter. Anything else is a 404.
func pathID(ctx echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

func queryInt(ctx echo.Context, name string) (int64, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, core.NewFieldError(name, "must be an integer")
	}
	return n, nil
}

func queryBool(ctx echo.Context, name string) (bool, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, core.NewFieldError(name, "must be true or false")
	}
	return b, nil
}

// queryDate reads a YYYY-MM-DD query parameter as a UTC date. Zero if absent.
func queryDate(ctx echo.Context, name string) (time.Time, error) {
	return parseDate(name, ctx.QueryParam(name))
}

func parseDate(field, val string) (time.Time, error) {
	val = strings.TrimSpace(val)
	if val == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, val, time.UTC)
	if err != nil {
		return time.Time{}, core.NewFieldError(field, "must be a date formatted as YYYY-MM-DD")
	}
	return t, nil
}

// queryClassID reads the optional class_id filter of reports.
func queryClassID(ctx echo.Context) (*int64, error) {
	if ctx.QueryParam("class_id") == "" {
		return nil, nil
	}
	id, err := queryInt(ctx, "class_id")
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func queryPage(ctx echo.Context) (core.Page, error) {
	limit, err := queryInt(ctx, "limit")
	if err != nil {
		return core.Page{}, err
	}
	offset, err := queryInt(ctx, "offset")
	if err != nil {
		return core.Page{}, err
	}
	return core.Page{Limit: int(limit), Offset: int(offset)}, nil
}
