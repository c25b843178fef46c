package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	shiftlabv1 "github.com/vladislavdragonenkov/shiftlab/api/shiftlab/v1"
	"github.com/vladislavdragonenkov/shiftlab/internal/domain"
	"github.com/vladislavdragonenkov/shiftlab/internal/service/idempotency"
)

const (
	createOrderScope = "rest:CreateOrder"
	// ReplayedHeader отмечает ответ, восстановленный из хранилища ключей.
	ReplayedHeader = "Idempotent-Replayed"
	jsonContent    = "application/json; charset=utf-8"
)

// createIdempotent выполняет создание заказа под ключом идемпотентности.
func (h *Handler) createIdempotent(c *gin.Context, key string, req *shiftlabv1.CreateOrderRequest, raw []byte) {
	canonical, err := json.Marshal(req)
	if err != nil {
		canonical = raw
	}
	requestHash := idempotency.RequestHash(createOrderScope, canonical)

	record, fresh, err := h.guard.Begin(c.Request.Context(), key, requestHash)
	switch {
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		writeError(c, http.StatusUnprocessableEntity, "idempotency_key_reused",
			"idempotency key is already used with different request payload")
		return
	case errors.Is(err, idempotency.ErrInProgress):
		writeError(c, http.StatusConflict, "request_in_progress", err.Error())
		return
	case err != nil:
		h.fail(c, err, "CreateOrder", "")
		return
	}
	if !fresh && replayable(record) {
		c.Header(ReplayedHeader, "true")
		c.Data(record.StatusCode, jsonContent, record.ResponseBody)
		return
	}

	code, payload := h.create(c, req, idempotency.DerivedID(key, requestHash))
	body, err := json.Marshal(payload)
	if err != nil {
		h.fail(c, err, "CreateOrder", "")
		return
	}
	h.remember(context.WithoutCancel(c.Request.Context()), key, code, body)
	c.Data(code, jsonContent, body)
}

func (h *Handler) remember(ctx context.Context, key string, code int, body []byte) {
	var err error
	if code < http.StatusBadRequest {
		err = h.guard.Complete(ctx, key, body, code)
	} else {
		err = h.guard.Fail(ctx, key, body, code)
	}
	if err != nil {
		h.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}
}

// replayable сообщает, что сохранённый ответ можно вернуть без выполнения.
// Временные ошибки не кэшируются: повтор с тем же ключом выполняется заново.
func replayable(record domain.IdempotencyRecord) bool {
	if record.StatusCode == 0 || len(record.ResponseBody) == 0 {
		return false
	}
	switch record.Status {
	case domain.IdempotencyStatusDone:
		return true
	case domain.IdempotencyStatusFailed:
		return record.StatusCode != StatusClientClosedRequest && record.StatusCode < http.StatusInternalServerError
	default:
		return false
	}
}
