package http

import (
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

// ExportEvents streams the retained replay window as gzip-compressed
// NDJSON, one event per line in ascending id order. An optional after
// query parameter skips events at or below that id.
func (h *Handlers) ExportEvents(c *gin.Context) {
	var after uint64
	if raw := c.Query("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after"})
			return
		}
		after = parsed
	}

	events := h.replay.After(after)

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Content-Encoding", "gzip")
	c.Header("Content-Disposition", `attachment; filename="events.ndjson.gz"`)
	c.Status(http.StatusOK)

	zw := gzip.NewWriter(c.Writer)
	defer zw.Close()

	for _, event := range events {
		line, err := sonic.Marshal(event)
		if err != nil {
			continue
		}
		if _, err := zw.Write(append(line, '\n')); err != nil {
			return
		}
	}
}
