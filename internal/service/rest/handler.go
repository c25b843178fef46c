// Package rest реализует HTTP API сервисных заказов для интерфейса мастерской.
package rest

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	shiftlabv1 "github.com/vladislavdragonenkov/shiftlab/api/shiftlab/v1"
	grpcsvc "github.com/vladislavdragonenkov/shiftlab/internal/service/grpc"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/idempotency"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/lifecycle"
)

// IdempotencyHeader — заголовок ключа повторяемого запроса.
const IdempotencyHeader = "Idempotency-Key"

// Options задаёт зависимости обработчиков.
type Options struct {
	Logger *log.Entry
	Guard  *idempotency.Guard
}

// Option настраивает Handler.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithIdempotency включает обработку заголовка Idempotency-Key для создания заказа.
// Заголовок необязателен: запрос без него выполняется как обычно.
func WithIdempotency(guard *idempotency.Guard) Option {
	return func(o *Options) { o.Guard = guard }
}

// Handler обслуживает HTTP-маршруты поверх контроллера жизненного цикла.
type Handler struct {
	orders grpcsvc.Controller
	guard  *idempotency.Guard
	logger *log.Entry
}

// NewHandler создаёт обработчики HTTP API.
func NewHandler(orders grpcsvc.Controller, options ...Option) *Handler {
	var opts Options
	for _, option := range options {
		option(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "rest-service-orders")
	}
	return &Handler{orders: orders, guard: opts.Guard, logger: logger}
}

// NewRouter собирает gin.Engine с маршрутами /api/v1.
func NewRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(handler.logger), recovery(handler.logger))
	router.HandleMethodNotAllowed = true
	router.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "not_found", "route not found")
	})
	handler.Register(router.Group("/api/v1"))
	return router
}

// Register подключает маршруты к группе.
func (h *Handler) Register(api *gin.RouterGroup) {
	orders := api.Group("/orders")
	{
		orders.POST("", h.createOrder)
		orders.GET("", h.listOrders)
		orders.GET("/:id", h.getOrder)
		orders.PUT("/:id", h.updateOrder)
		orders.POST("/:id/void", h.voidOrder)
	}

	api.GET("/vehicles/:id/orders", h.vehicleHistory)
	api.GET("/services/upcoming", h.upcomingServices)
	api.GET("/statistics", h.statistics)

	catalog := api.Group("/catalog")
	{
		catalog.POST("/:id/restock", h.restock)
		catalog.GET("/:id/movements", h.stockMovements)
	}
}

type updateOrderBody struct {
	ExpectedVersion int64                 `json:"expected_version" binding:"required,min=1"`
	Order           shiftlabv1.OrderInput `json:"order"`
}

type voidOrderBody struct {
	ExpectedVersion int64  `json:"expected_version" binding:"required,min=1"`
	Reason          string `json:"reason" binding:"max=200"`
}

type restockBody struct {
	Quantity decimal.Decimal `json:"quantity"`
	Note     string          `json:"note" binding:"max=200"`
}

type listOrdersQuery struct {
	VehicleID string `form:"vehicle_id"`
	ClientID  string `form:"client_id"`
	Status    string `form:"status" binding:"omitempty,oneof=active voided"`
	From      string `form:"from"`
	To        string `form:"to"`
	Offset    int32  `form:"offset" binding:"min=0"`
	Limit     int32  `form:"limit" binding:"min=0"`
}

type upcomingQuery struct {
	DaysAhead int `form:"days_ahead"`
	KmAhead   int `form:"km_ahead"`
}

type statisticsQuery struct {
	From string `form:"from"`
	To   string `form:"to"`
}

type movementsQuery struct {
	Limit int `form:"limit" binding:"min=0"`
}

func (h *Handler) createOrder(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_body", "failed to read request body")
		return
	}
	var req shiftlabv1.CreateOrderRequest
	if err := binding.JSON.BindBody(body, &req); err != nil {
		writeBindError(c, err)
		return
	}

	key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
	if key == "" || !h.guard.Enabled() {
		c.JSON(h.create(c, &req, ""))
		return
	}
	h.createIdempotent(c, key, &req, body)
}

func (h *Handler) create(c *gin.Context, req *shiftlabv1.CreateOrderRequest, orderID string) (int, any) {
	input, err := req.Order.ToLifecycle(h.orders.Location())
	if err != nil {
		return h.failure(err, "CreateOrder", "")
	}
	ctx := c.Request.Context()
	order, err := h.orders.Create(ctx, lifecycle.CreateOrderCommand{OrderID: orderID, Input: input})
	if isDuplicate(err) && orderID != "" {
		// Заказ с выведенным ID уже сохранён предыдущей попыткой.
		order, err = h.orders.Get(ctx, orderID)
	}
	if err != nil {
		return h.failure(err, "CreateOrder", orderID)
	}
	return http.StatusCreated, shiftlabv1.CreateOrderResponse{Order: shiftlabv1.OrderFromDomain(order)}
}

func (h *Handler) updateOrder(c *gin.Context) {
	var body updateOrderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBindError(c, err)
		return
	}
	orderID := c.Param("id")
	input, err := body.Order.ToLifecycle(h.orders.Location())
	if err != nil {
		h.fail(c, err, "UpdateOrder", orderID)
		return
	}
	order, err := h.orders.Update(c.Request.Context(), lifecycle.UpdateOrderCommand{
		OrderID:         orderID,
		ExpectedVersion: body.ExpectedVersion,
		Input:           input,
	})
	if err != nil {
		h.fail(c, err, "UpdateOrder", orderID)
		return
	}
	c.JSON(http.StatusOK, shiftlabv1.UpdateOrderResponse{Order: shiftlabv1.OrderFromDomain(order)})
}

func (h *Handler) voidOrder(c *gin.Context) {
	var body voidOrderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBindError(c, err)
		return
	}
	orderID := c.Param("id")
	order, err := h.orders.Void(c.Request.Context(), lifecycle.VoidOrderCommand{
		OrderID:         orderID,
		ExpectedVersion: body.ExpectedVersion,
		Reason:          body.Reason,
	})
	if err != nil {
		h.fail(c, err, "VoidOrder", orderID)
		return
	}
	c.JSON(http.StatusOK, shiftlabv1.VoidOrderResponse{Order: shiftlabv1.OrderFromDomain(order)})
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID := c.Param("id")
	ctx := c.Request.Context()
	order, err := h.orders.Get(ctx, orderID)
	if err != nil {
		h.fail(c, err, "GetOrder", orderID)
		return
	}
	timeline, err := h.orders.Timeline(ctx, orderID)
	if err != nil {
		h.fail(c, err, "GetOrder", orderID)
		return
	}
	c.JSON(http.StatusOK, shiftlabv1.GetOrderResponse{
		Order:    shiftlabv1.OrderFromDomain(order),
		Timeline: shiftlabv1.TimelineFromDomain(timeline),
	})
}

func (h *Handler) listOrders(c *gin.Context) {
	var q listOrdersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeBindError(c, err)
		return
	}
	req := shiftlabv1.ListOrdersRequest{
		VehicleID: q.VehicleID,
		ClientID:  q.ClientID,
		Status:    q.Status,
		From:      q.From,
		To:        q.To,
		Offset:    q.Offset,
		Limit:     q.Limit,
	}
	query, err := req.ToQuery()
	if err != nil {
		h.fail(c, err, "ListOrders", "")
		return
	}
	page, err := h.orders.List(c.Request.Context(), query)
	if err != nil {
		h.fail(c, err, "ListOrders", "")
		return
	}
	c.JSON(http.StatusOK, shiftlabv1.ListOrdersResponse{
		Orders: shiftlabv1.OrdersFromDomain(page.Orders),
		Total:  int32(page.Total), //nolint:gosec // размер выборки ограничен хранилищем.
	})
}

func (h *Handler) vehicleHistory(c *gin.Context) {
	orders, err := h.orders.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "VehicleHistory", "")
		return
	}
	c.JSON(http.StatusOK, shiftlabv1.VehicleHistoryResponse{Orders: shiftlabv1.OrdersFromDomain(orders)})
}

func (h *Handler) upcomingServices(c *gin.Context) {
	var q upcomingQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeBindError(c, err)
		return
	}
	alerts, err := h.orders.Upcoming(c.Request.Context(), q.DaysAhead, q.KmAhead)
	if err != nil {
		h.fail(c, err, "UpcomingServices", "")
		return
	}
	c.JSON(http.StatusOK, shiftlabv1.UpcomingServicesResponse{Alerts: shiftlabv1.AlertsFromDomain(alerts)})
}

func (h *Handler) statistics(c *gin.Context) {
	var q statisticsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeBindError(c, err)
		return
	}
	from, err := shiftlabv1.ParseDateFilter("from", q.From)
	if err != nil {
		h.fail(c, err, "Statistics", "")
		return
	}
	to, err := shiftlabv1.ParseDateFilter("to", q.To)
	if err != nil {
		h.fail(c, err, "Statistics", "")
		return
	}
	stats, err := h.orders.Statistics(c.Request.Context(), from, to)
	if err != nil {
		h.fail(c, err, "Statistics", "")
		return
	}
	c.JSON(http.StatusOK, shiftlabv1.StatisticsResponse{Statistics: shiftlabv1.StatisticsFromDomain(stats)})
}

func (h *Handler) restock(c *gin.Context) {
	var body restockBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeBindError(c, err)
		return
	}
	adjustment, err := h.orders.Restock(c.Request.Context(), c.Param("id"), body.Quantity, body.Note)
	if err != nil {
		h.fail(c, err, "Restock", "")
		return
	}
	c.JSON(http.StatusCreated, shiftlabv1.RestockResponse{Adjustment: shiftlabv1.AdjustmentFromDomain(adjustment)})
}

func (h *Handler) stockMovements(c *gin.Context) {
	var q movementsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeBindError(c, err)
		return
	}
	itemID := c.Param("id")
	ctx := c.Request.Context()
	item, err := h.orders.CatalogItem(ctx, itemID)
	if err != nil {
		h.fail(c, err, "StockMovements", "")
		return
	}
	adjustments, err := h.orders.StockMovements(ctx, itemID, q.Limit)
	if err != nil {
		h.fail(c, err, "StockMovements", "")
		return
	}
	c.JSON(http.StatusOK, shiftlabv1.StockMovementsResponse{
		Item:        shiftlabv1.CatalogItemFromDomain(item),
		Adjustments: shiftlabv1.AdjustmentsFromDomain(adjustments),
	})
}
