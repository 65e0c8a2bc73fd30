package echoapi

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core/student"
)

type studentApi struct {
	svc student.ServiceInterface
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc student.ServiceInterface) {
	api := studentApi{svc: svc}

	sg := g.Group("/students", jwt)

	sg.POST("/mark-late", api.markLate)
	sg.GET("", api.query)
	sg.GET("/export", api.export)
	sg.GET("/late-today", api.lateToday)
	sg.GET("/records/:period", api.records)
	sg.GET("/search", api.search)
	sg.GET("/stats", api.stats)

	// destructive endpoints are admin-only
	sg.POST("/remove-late-record", api.removeLateRecord, adminMiddleware())
	sg.POST("/promote-semester", api.promoteSemester, adminMiddleware())
	sg.POST("/reset-all-data", api.resetAllData, adminMiddleware())
	sg.DELETE("", api.destroyAll, adminMiddleware())

	sg.GET("/:rollNo", api.retrieve)
	sg.DELETE("/:rollNo", api.destroy, adminMiddleware())
}

// bindPagination parses the optional `page` and `limit` query params.
func bindPagination(ctx echo.Context) student.Pagination {
	var page student.Pagination
	page.Page, _ = strconv.Atoi(ctx.QueryParam("page"))
	page.Limit, _ = strconv.Atoi(ctx.QueryParam("limit"))
	return page
}

// Handlers

func (api *studentApi) markLate(ctx echo.Context) error {
	var data student.MarkLateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkLateRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	res, err := api.svc.MarkLate(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	if res.NewlyRegistered {
		return ctx.JSON(http.StatusCreated, res)
	}
	return ctx.JSON(http.StatusOK, res)
}

type removalResponse struct {
	Message string `json:"message"`
	*student.RemovalResult
}

func (api *studentApi) removeLateRecord(ctx echo.Context) error {
	var data student.RemoveLateRecordRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RemoveLateRecordRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	res, err := api.svc.RemoveLateRecord(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, removalResponse{
		Message: fmt.Sprintf(
			"removed %d late record(s) for %s on %s", res.RemovedRecords, res.Student.Name, res.Date),
		RemovalResult: res,
	})
}

func (api *studentApi) query(ctx echo.Context) error {
	res, err := api.svc.All(ctx.Request().Context(), bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, res)
}

type lateTodayResponse struct {
	Date        string                  `json:"date"`
	Students    []student.PeriodStudent `json:"students"`
	TotalCount  int                     `json:"totalCount"`
	TotalPages  int                     `json:"totalPages"`
	CurrentPage int                     `json:"currentPage"`
	HasNextPage bool                    `json:"hasNextPage"`
	HasPrevPage bool                    `json:"hasPrevPage"`
}

func (api *studentApi) lateToday(ctx echo.Context) error {
	recs, paged, err := api.svc.LateToday(ctx.Request().Context(), bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "querying today's late students")
	}
	students := recs.Students
	if students == nil {
		students = []student.PeriodStudent{}
	}
	return ctx.JSON(http.StatusOK, lateTodayResponse{
		Date:        recs.StartDate.Format("2006-01-02"),
		Students:    students,
		TotalCount:  paged.TotalCount,
		TotalPages:  paged.TotalPages,
		CurrentPage: paged.CurrentPage,
		HasNextPage: paged.HasNextPage,
		HasPrevPage: paged.HasPrevPage,
	})
}

func (api *studentApi) records(ctx echo.Context) error {
	recs, err := api.svc.Records(ctx.Request().Context(), ctx.Param("period"))
	if err != nil {
		return err
	}
	if recs.Students == nil {
		recs.Students = []student.PeriodStudent{}
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *studentApi) search(ctx echo.Context) error {
	data := student.SearchRequest{Query: ctx.QueryParam("q")}
	data.Year, _ = strconv.Atoi(ctx.QueryParam("year"))
	if err := data.Validate(); err != nil {
		return err
	}

	res, err := api.svc.Search(ctx.Request().Context(), data, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "searching students")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.Get(ctx.Request().Context(), ctx.Param("rollNo"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *studentApi) stats(ctx echo.Context) error {
	stats, err := api.svc.SystemStats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying system stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *studentApi) promoteSemester(ctx echo.Context) error {
	n, err := api.svc.PromoteSemester(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"message":         "semester promoted; attendance data reset for the new term",
		"studentsUpdated": n,
	})
}

func (api *studentApi) resetAllData(ctx echo.Context) error {
	n, err := api.svc.ResetAllData(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"message":       "all attendance data has been reset",
		"studentsReset": n,
	})
}

func (api *studentApi) destroy(ctx echo.Context) error {
	s, err := api.svc.Delete(ctx.Request().Context(), ctx.Param("rollNo"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"message": fmt.Sprintf("student %s (%s) deleted", s.Name, s.RollNo),
		"student": s,
	})
}

func (api *studentApi) destroyAll(ctx echo.Context) error {
	n, err := api.svc.DeleteAll(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"message":      "all students deleted",
		"deletedCount": n,
	})
}

func (api *studentApi) export(ctx echo.Context) error {
	students, err := api.svc.Export(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "exporting students")
	}

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv")
	res.Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="students-%s.csv"`, time.Now().Format("2006-01-02")))
	res.WriteHeader(http.StatusOK)

	w := csv.NewWriter(res)
	if err = w.Write([]string{"rollNo", "name", "year", "semester", "lateDays", "fines", "gracePeriodUsed", "status"}); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, s := range students {
		row := []string{
			s.RollNo, s.Name, strconv.Itoa(s.Year), strconv.Itoa(s.Semester),
			strconv.Itoa(s.LateDays), strconv.Itoa(s.Fines), strconv.Itoa(s.GracePeriodUsed), string(s.Status),
		}
		if err = w.Write(row); err != nil {
			return errors.Wrap(err, "writing csv row")
		}
	}
	w.Flush()
	return w.Error()
}
