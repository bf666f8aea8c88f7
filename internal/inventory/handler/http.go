package handler

import (
	"errors"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/auth"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/platform/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// HTTPHandler serves the admin-facing REST surface.
type HTTPHandler struct {
	uc     inventory.UseCase
	logger logger.ZapLogger
}

func NewHTTPHandler(uc inventory.UseCase, log logger.ZapLogger) *HTTPHandler {
	return &HTTPHandler{
		uc:     uc,
		logger: log,
	}
}

func NewHTTPApp(h *HTTPHandler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "omnipos-inventory-service",
		DisableStartupMessage: true,
		ErrorHandler:          h.errorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	h.RegisterRoutes(app)

	app.Use("*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Route not found",
		})
	})
	return app
}

func (h *HTTPHandler) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api/v1")
	api.Get("/health", h.HealthCheck)

	inv := api.Group("/inventory", withActor)
	inv.Get("/", h.ListInventory)
	inv.Get("/summary", h.StockSummary)
	inv.Get("/history", h.GetHistory)
	inv.Get("/history/export", h.Export)
	inv.Post("/adjust", h.Adjust)
	inv.Post("/bulk-adjust", h.BulkAdjust)
	inv.Get("/:productId", h.GetInventory)
}

// withActor moves the caller identity header into the request context.
func withActor(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if actor := c.Get("X-User-ID"); actor != "" {
		ctx = auth.WithActorID(ctx, actor)
	}
	if id := requestID(c); id != "" {
		ctx = auth.WithRequestID(ctx, id)
	}
	c.SetUserContext(ctx)
	return c.Next()
}

func (h *HTTPHandler) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(APIResponse{
			Success:   false,
			Message:   fe.Message,
			Error:     &APIError{Code: "HTTP_ERROR", Message: fe.Message},
			Timestamp: time.Now(),
			RequestID: requestID(c),
		})
	}
	h.logger.Error("unhandled http error", zap.String("path", c.Path()), zap.Error(err))
	return errorResponse(c, err)
}

func (h *HTTPHandler) HealthCheck(c *fiber.Ctx) error {
	return successResponse(c, "Inventory service is healthy", fiber.Map{
		"service": "inventory-service",
		"status":  "healthy",
	})
}

func (h *HTTPHandler) GetInventory(c *fiber.Ctx) error {
	rec, err := h.uc.GetInventory(c.UserContext(), c.Params("productId"), stringPtr(c.Query("variant_id")))
	if err != nil {
		return errorResponse(c, err)
	}
	return successResponse(c, "Inventory retrieved", mapInventory(rec))
}

func (h *HTTPHandler) ListInventory(c *fiber.Ctx) error {
	records, page, err := h.uc.ListInventory(c.UserContext(), &dto.InventoryFilters{
		ProductID:  c.Query("product_id"),
		Search:     c.Query("search"),
		LowStock:   c.QueryBool("low_stock", false),
		OutOfStock: c.QueryBool("out_of_stock", false),
		Page:       c.QueryInt("page", 1),
		PerPage:    c.QueryInt("per_page", dto.DefaultPerPage),
	})
	if err != nil {
		return errorResponse(c, err)
	}

	items := make([]*InventoryEntry, len(records))
	for i := range records {
		items[i] = mapInventory(&records[i])
	}
	return successResponse(c, "Inventory retrieved", fiber.Map{
		"items":      items,
		"pagination": page,
	})
}

func (h *HTTPHandler) StockSummary(c *fiber.Ctx) error {
	summary, err := h.uc.StockSummary(c.UserContext())
	if err != nil {
		return errorResponse(c, err)
	}
	return successResponse(c, "Stock summary retrieved", summary)
}

func (h *HTTPHandler) GetHistory(c *fiber.Ctx) error {
	filters, err := parseMovementFilters(c)
	if err != nil {
		return badRequest(c, err.Error(), nil)
	}

	result, err := h.uc.GetHistory(c.UserContext(), filters)
	if err != nil {
		return errorResponse(c, err)
	}
	return successResponse(c, "History retrieved", result)
}

func (h *HTTPHandler) Export(c *fiber.Ctx) error {
	filters, err := parseMovementFilters(c)
	if err != nil {
		return badRequest(c, err.Error(), nil)
	}

	result, err := h.uc.Export(c.UserContext(), &dto.ExportInput{
		Filters: *filters,
		Format:  dto.ExportFormat(c.Query("format", string(dto.FormatCSV))),
	})
	if err != nil {
		return errorResponse(c, err)
	}

	c.Set(fiber.HeaderContentType, result.ContentType)
	c.Attachment(result.Filename)
	return c.Status(fiber.StatusOK).Send(result.Data)
}

func (h *HTTPHandler) Adjust(c *fiber.Ctx) error {
	var req AdjustRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body", map[string]interface{}{"error": err.Error()})
	}

	rec, err := h.uc.Adjust(c.UserContext(), &dto.AdjustInput{
		ProductID:     req.ProductID,
		VariantID:     stringPtr(req.VariantID),
		Value:         int(req.Value),
		Mode:          dto.AdjustMode(req.Mode),
		ActionType:    req.ActionType,
		Reason:        req.Reason,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
	})
	if errors.Is(err, inventory.ErrNoOpAdjustment) {
		return successResponse(c, "Stock unchanged", AdjustResponse{Inventory: mapInventory(rec), NoOp: true})
	}
	if err != nil {
		return errorResponse(c, err)
	}
	return successResponse(c, "Stock adjusted", AdjustResponse{Inventory: mapInventory(rec)})
}

func (h *HTTPHandler) BulkAdjust(c *fiber.Ctx) error {
	var req dto.BulkAdjustInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body", map[string]interface{}{"error": err.Error()})
	}

	result, err := h.uc.BulkAdjust(c.UserContext(), &req)
	var batch *inventory.BatchError
	if err != nil && !errors.As(err, &batch) {
		return errorResponse(c, err)
	}
	return successResponse(c, "Bulk adjustment processed", result)
}

func parseMovementFilters(c *fiber.Ctx) (*dto.MovementFilters, error) {
	f := &dto.MovementFilters{
		InventoryID: c.Query("inventory_id"),
		ProductID:   c.Query("product_id"),
		VariantID:   stringPtr(c.Query("variant_id")),
		Search:      c.Query("search"),
		ActionType:  model.ActionType(c.Query("action_type")),
		Newest:      c.Query("sort") == "newest",
		Page:        c.QueryInt("page", 1),
		PerPage:     c.QueryInt("per_page", dto.DefaultPerPage),
	}

	var err error
	if f.DateFrom, err = parseDate(c.Query("date_from"), false); err != nil {
		return nil, err
	}
	if f.DateTo, err = parseDate(c.Query("date_to"), true); err != nil {
		return nil, err
	}
	return f, nil
}

// parseDate accepts RFC 3339 timestamps or plain dates. A plain end date covers the whole day.
func parseDate(value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, errors.New("dates must be RFC 3339 or YYYY-MM-DD")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
