package response

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/corp-reports/pkg/errors"
	"github.com/noah-isme/corp-reports/pkg/middleware/requestid"
)

// Envelope is the error contract of the stub report server. Report bodies
// are raw workbook bytes; only failures are wrapped.
type Envelope struct {
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta,omitempty"`
}

// Error aborts the request with the typed status of err. The request ID is
// echoed in meta so a client log line can be matched to the server's.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	envelope := Envelope{Error: appErr}
	if reqID := requestid.Value(c); reqID != "" {
		envelope.Meta = map[string]interface{}{"request_id": reqID}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(appErr.Status, envelope)
}

// Attachment writes the headers for a binary download of size bytes. An
// exact Content-Length is what lets clients report download progress.
func Attachment(c *gin.Context, filename, contentType string, size int) {
	noStore(c)
	c.Header("Content-Type", contentType)
	c.Header("Content-Length", strconv.Itoa(size))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}
