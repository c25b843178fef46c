package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/shiftlab/internal/service/grpc"
)

// StatusClientClosedRequest — клиент закрыл соединение до ответа.
const StatusClientClosedRequest = 499

// FieldError — замечание к полю запроса.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// StockShortage описывает нехватку остатка.
type StockShortage struct {
	ItemID    string `json:"item_id"`
	Requested string `json:"requested"`
	Available string `json:"available"`
	Shortfall string `json:"shortfall"`
}

// ErrorBody — тело ответа с ошибкой.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Fields  []FieldError   `json:"fields,omitempty"`
	Stock   *StockShortage `json:"stock,omitempty"`
}

// ErrorResponse — ответ с ошибкой.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// classify возвращает HTTP-статус и машинный код ошибки.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case domain.IsValidation(err):
		return http.StatusBadRequest, "validation_failed"
	case domain.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, domain.ErrOrderVoided):
		return http.StatusConflict, "order_voided"
	case domain.IsConcurrentModification(err):
		return http.StatusConflict, "version_conflict"
	case errors.Is(err, domain.ErrDuplicate):
		return http.StatusConflict, "duplicate"
	case domain.IsStorageUnavailable(err):
		return http.StatusServiceUnavailable, "storage_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// errorResponse строит тело ответа. Текст берётся из gRPC-статуса,
// который скрывает детали внутренних ошибок.
func errorResponse(err error) (int, ErrorResponse) {
	code, reason := classify(err)
	body := ErrorBody{Code: reason, Message: grpcsvc.ToStatus(err).Message()}

	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		for _, problem := range validation.Problems {
			body.Fields = append(body.Fields, FieldError{Field: problem.Field, Message: problem.Message})
		}
	}
	if stockErr, ok := domain.AsInsufficientStock(err); ok {
		body.Stock = &StockShortage{
			ItemID:    stockErr.ItemID,
			Requested: stockErr.Requested.String(),
			Available: stockErr.Available.String(),
			Shortfall: stockErr.Shortfall().String(),
		}
	}
	return code, ErrorResponse{Error: body}
}

// failure пишет ошибку в лог и возвращает ответ для клиента.
func (h *Handler) failure(err error, operation, orderID string) (int, any) {
	code, resp := errorResponse(err)
	entry := h.logger.WithError(err).WithFields(log.Fields{
		"operation": operation,
		"status":    code,
	})
	if orderID != "" {
		entry = entry.WithField("order_id", orderID)
	}
	if code >= http.StatusInternalServerError {
		entry.Error("service order request failed")
	} else {
		entry.Debug("service order request rejected")
	}
	return code, resp
}

func (h *Handler) fail(c *gin.Context, err error, operation, orderID string) {
	c.JSON(h.failure(err, operation, orderID))
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// writeBindError отвечает на ошибку разбора тела или query-параметров.
func writeBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Field(), Message: "failed on " + fe.Tag()})
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: ErrorBody{
			Code:    "validation_failed",
			Message: "request validation failed",
			Fields:  fields,
		}})
		return
	}
	writeError(c, http.StatusBadRequest, "invalid_body", err.Error())
}

func isDuplicate(err error) bool {
	return errors.Is(err, domain.ErrDuplicate)
}
