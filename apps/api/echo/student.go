package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ada/core/student"
)

type (
	studentApi struct {
		svc *student.Service
	}

	NewClassRequest struct {
		Name string `json:"name"`
	}
)

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts Options) {
	api := studentApi{svc: opts.Students}

	sg := g.Group("/students", jwt)
	sg.GET("", api.query)
	sg.POST("", api.create)
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id", api.update)
	sg.DELETE("/:id", api.destroy, adminMiddleware)

	cg := g.Group("/classes", jwt)
	cg.GET("", api.queryClasses)
	cg.POST("", api.createClass)
}

func (api *studentApi) query(ctx echo.Context) error {
	classID, err := queryInt(ctx, "class_id")
	if err != nil {
		return err
	}
	page, err := queryPage(ctx)
	if err != nil {
		return err
	}
	filter := student.QueryFilter{Search: ctx.QueryParam("search"), ClassID: classID, Page: page}

	students, err := api.svc.Search(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "searching students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) create(ctx echo.Context) error {
	actor, err := actorID(ctx)
	if err != nil {
		return err
	}
	var data student.NewStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}

	std, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "registering student")
	}
	return ctx.JSON(http.StatusCreated, std)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	std, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentApi) update(ctx echo.Context) error {
	actor, err := actorID(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	var data student.UpdateStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}

	std, err := api.svc.Update(ctx.Request().Context(), actor, id, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	actor, err := actorID(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx, "id")
	if err != nil {
		return err
	}
	cascade, err := queryBool(ctx, "cascade")
	if err != nil {
		return err
	}

	if err = api.svc.Delete(ctx.Request().Context(), actor, id, cascade); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) queryClasses(ctx echo.Context) error {
	classes, err := api.svc.ListClasses(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing classes")
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *studentApi) createClass(ctx echo.Context) error {
	actor, err := actorID(ctx)
	if err != nil {
		return err
	}
	var data NewClassRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClassRequest")
	}

	cls, err := api.svc.CreateClass(ctx.Request().Context(), actor, data.Name)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}
