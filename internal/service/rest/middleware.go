package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const slowRequestThreshold = 500 * time.Millisecond

// requestLogger пишет в лог каждый запрос с длительностью и статусом.
func requestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		elapsed := time.Since(started)
		entry := logger.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": elapsed.String(),
		})
		if elapsed > slowRequestThreshold {
			entry.Warn("slow http request")
			return
		}
		entry.Debug("http request")
	}
}

// recovery превращает панику обработчика в ответ 500.
func recovery(logger *log.Entry) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		logger.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"panic":  recovered,
		}).Error("panic recovered in http handler")
		writeError(c, http.StatusInternalServerError, "internal", "internal error")
	})
}
