// internal/server/tools.go
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/gin-gonic/gin"

	"mcp-meal-snap/internal/auth"
	"mcp-meal-snap/internal/models"
	"mcp-meal-snap/internal/service"
)

type ImageParams struct {
	ImageBase64 string `json:"image_base64" description:"Base64 encoded image, optionally as a data URL"`
	Filename    string `json:"filename,omitempty" description:"Original file name"`
	ContentType string `json:"content_type,omitempty" description:"MIME type of the image (sniffed when omitted)"`
}

type LogMealParams struct {
	ImageParams
	MealType string `json:"meal_type,omitempty" description:"breakfast, lunch, dinner or snack (derived from the time when omitted)"`
}

type SaveMealParams struct {
	MealType string            `json:"meal_type,omitempty" description:"breakfast, lunch, dinner or snack (derived from the time when omitted)"`
	Items    []models.FoodItem `json:"items" description:"Food items of the meal"`
	ImageURL string            `json:"image_url,omitempty" description:"URL of the stored meal photo"`
	Degraded bool              `json:"degraded,omitempty" description:"Whether the items came from a failed analysis"`
}

type NormalizeParams struct {
	Payload any `json:"payload" description:"Raw analysis payload in any supported shape"`
}

type DateParams struct {
	Date string `json:"date,omitempty" description:"Date to query (YYYY-MM-DD, defaults to today)"`
}

type tool struct {
	description  string
	requiresUser bool
	handle       func(ctx context.Context, userID string, req *protocol.CallToolRequest) (any, error)
}

func (s *MealSnapServer) registerTools() map[string]tool {
	return map[string]tool{
		"analyze_meal": {
			description: "Analyze a meal photo and return its normalized nutrition facts",
			handle:      s.handleAnalyzeTool,
		},
		"log_meal": {
			description:  "Analyze a meal photo and save it as a meal record",
			requiresUser: true,
			handle:       s.handleLogMealTool,
		},
		"save_meal": {
			description:  "Save already analyzed food items as a meal record",
			requiresUser: true,
			handle:       s.handleSaveMealTool,
		},
		"normalize_analysis": {
			description: "Convert a raw analysis payload into the canonical result",
			handle:      s.handleNormalizeTool,
		},
		"get_meals": {
			description:  "List the meals of one day grouped by meal type",
			requiresUser: true,
			handle:       s.handleGetMealsTool,
		},
		"daily_summary": {
			description:  "Daily nutrition totals, meal shares and balance",
			requiresUser: true,
			handle:       s.handleDailySummaryTool,
		},
	}
}

func (s *MealSnapServer) handleListTools(c *gin.Context) {
	type toolInfo struct {
		Name         string `json:"name"`
		Description  string `json:"description"`
		RequiresUser bool   `json:"requiresUser"`
	}
	list := []toolInfo{}
	for _, name := range slices.Sorted(maps.Keys(s.tools)) {
		t := s.tools[name]
		list = append(list, toolInfo{Name: name, Description: t.description, RequiresUser: t.requiresUser})
	}
	ok(c, list)
}

// handleMCP dispatches a CallToolRequest by name. Tool failures are reported
// inside the result with isError set.
func (s *MealSnapServer) handleMCP(c *gin.Context) {
	var request protocol.CallToolRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ApiResponse{
			Error: &ApiError{Code: service.CodeInvalidInput, Message: fmt.Sprintf("invalid JSON: %v", err)},
		})
		return
	}

	t, found := s.tools[request.Name]
	if !found {
		c.AbortWithStatusJSON(http.StatusNotFound, ApiResponse{
			Error: &ApiError{Code: codeUnknownTool, Message: fmt.Sprintf("unknown tool: %s", request.Name)},
		})
		return
	}

	userID, _ := auth.UserID(c)
	var (
		data any
		err  error
	)
	if t.requiresUser && auth.IsAnonymous(c) {
		err = &service.Error{Op: "server.CallTool", Err: service.ErrUnauthorized}
	} else {
		data, err = t.handle(c.Request.Context(), userID, &request)
	}

	var result *protocol.CallToolResult
	if err != nil {
		s.logger.Warn("tool call failed", "tool", request.Name, "code", service.Code(err), "error", err)
		result, err = s.createErrorResponse(err)
	} else {
		result, err = s.createJSONResponse(ApiResponse{Success: true, Data: data})
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// extractParams converts the request arguments into target.
func extractParams(req *protocol.CallToolRequest, target interface{}) error {
	jsonBytes, err := json.Marshal(req.Arguments)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal arguments: %v", service.ErrInvalidInput, err)
	}
	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return fmt.Errorf("%w: failed to unmarshal parameters: %v", service.ErrInvalidInput, err)
	}
	return nil
}

func (s *MealSnapServer) handleAnalyzeTool(ctx context.Context, userID string, req *protocol.CallToolRequest) (any, error) {
	var params ImageParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	up, err := params.upload()
	if err != nil {
		return nil, err
	}
	return s.service.AnalyzeUpload(ctx, userID, up)
}

func (s *MealSnapServer) handleLogMealTool(ctx context.Context, userID string, req *protocol.CallToolRequest) (any, error) {
	var params LogMealParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	up, err := params.upload()
	if err != nil {
		return nil, err
	}
	return s.service.LogMeal(ctx, userID, up, params.MealType)
}

func (s *MealSnapServer) handleSaveMealTool(ctx context.Context, userID string, req *protocol.CallToolRequest) (any, error) {
	var params SaveMealParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	return s.service.SaveRecord(ctx, userID, service.SaveInput{
		MealType: params.MealType,
		Items:    params.Items,
		ImageURL: params.ImageURL,
		Degraded: params.Degraded,
	})
}

func (s *MealSnapServer) handleNormalizeTool(ctx context.Context, userID string, req *protocol.CallToolRequest) (any, error) {
	var params NormalizeParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	return s.service.NormalizePayload(params.Payload), nil
}

func (s *MealSnapServer) handleGetMealsTool(ctx context.Context, userID string, req *protocol.CallToolRequest) (any, error) {
	var params DateParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if params.Date == "" {
		params.Date = s.service.Today()
	}
	return s.service.MealsByDate(ctx, userID, params.Date)
}

func (s *MealSnapServer) handleDailySummaryTool(ctx context.Context, userID string, req *protocol.CallToolRequest) (any, error) {
	var params DateParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	if params.Date == "" {
		params.Date = s.service.Today()
	}
	return s.service.DailyReport(ctx, userID, params.Date)
}

// upload decodes the base64 image. Data URLs carry their own content type.
func (p ImageParams) upload() (service.Upload, error) {
	encoded := strings.TrimSpace(p.ImageBase64)
	contentType := p.ContentType

	if rest, isDataURL := strings.CutPrefix(encoded, "data:"); isDataURL {
		meta, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return service.Upload{}, fmt.Errorf("%w: malformed data URL", service.ErrInvalidFile)
		}
		if contentType == "" {
			contentType = strings.TrimSuffix(meta, ";base64")
		}
		encoded = payload
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
	}
	if err != nil {
		return service.Upload{}, fmt.Errorf("%w: image is not valid base64", service.ErrInvalidFile)
	}

	return service.Upload{Filename: p.Filename, ContentType: contentType, Data: data}, nil
}

func (s *MealSnapServer) createJSONResponse(data interface{}) (*protocol.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}

func (s *MealSnapServer) createErrorResponse(cause error) (*protocol.CallToolResult, error) {
	_, apiErr := describe(cause)
	result, err := s.createJSONResponse(ApiResponse{Error: apiErr})
	if err != nil {
		return nil, err
	}
	result.IsError = true
	return result, nil
}
