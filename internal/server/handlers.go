// internal/server/handlers.go
package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"mcp-meal-snap/internal/auth"
	"mcp-meal-snap/internal/service"
)

func (s *MealSnapServer) handleAnalyze(c *gin.Context) {
	up, err := s.readUpload(c)
	if err != nil {
		fail(c, err)
		return
	}

	userID, _ := auth.UserID(c)
	result, err := s.service.AnalyzeUpload(c.Request.Context(), userID, up)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, result)
}

func (s *MealSnapServer) handleLogMeal(c *gin.Context) {
	up, err := s.readUpload(c)
	if err != nil {
		fail(c, err)
		return
	}

	userID, _ := auth.UserID(c)
	rec, err := s.service.LogMeal(c.Request.Context(), userID, up, c.PostForm("mealType"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ApiResponse{Success: true, Data: rec})
}

func (s *MealSnapServer) handleSaveMeal(c *gin.Context) {
	var in service.SaveInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, &service.Error{Op: "server.SaveMeal", Err: fmt.Errorf("%w: %v", service.ErrInvalidInput, err)})
		return
	}

	userID, _ := auth.UserID(c)
	rec, err := s.service.SaveRecord(c.Request.Context(), userID, in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ApiResponse{Success: true, Data: rec})
}

func (s *MealSnapServer) handleGetMeals(c *gin.Context) {
	userID, _ := auth.UserID(c)
	meals, err := s.service.MealsByDate(c.Request.Context(), userID, c.DefaultQuery("date", s.service.Today()))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, meals)
}

func (s *MealSnapServer) handleSummary(c *gin.Context) {
	userID, _ := auth.UserID(c)
	report, err := s.service.DailyReport(c.Request.Context(), userID, c.DefaultQuery("date", s.service.Today()))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, report)
}

// readUpload reads the multipart "image" field. A missing field yields an
// empty upload so the service reports it like any other invalid file.
func (s *MealSnapServer) readUpload(c *gin.Context) (service.Upload, error) {
	const op = "server.readUpload"
	limit := s.config.MaxImageSize
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	header, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return service.Upload{}, &service.Error{Op: op, Err: fmt.Errorf("%w: file size exceeds %d MB limit", service.ErrInvalidFile, limit>>20)}
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			return service.Upload{}, nil
		default:
			return service.Upload{}, &service.Error{Op: op, Err: fmt.Errorf("%w: %v", service.ErrInvalidFile, err)}
		}
	}

	f, err := header.Open()
	if err != nil {
		return service.Upload{}, &service.Error{Op: op, Err: fmt.Errorf("%w: %v", service.ErrInvalidFile, err)}
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return service.Upload{}, &service.Error{Op: op, Err: fmt.Errorf("%w: %v", service.ErrInvalidFile, err)}
	}

	return service.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
