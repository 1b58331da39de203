package middleware

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	ierr "github.com/flexprice/planshift/internal/errors"
	"github.com/flexprice/planshift/internal/logger"
	"github.com/flexprice/planshift/internal/types"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

const fallbackDisplay = "An unexpected error occurred"

// ErrorHandler renders the last error recorded with c.Error. Server errors keep
// their details out of the body and are logged and reported instead.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		status := ierr.HTTPStatusFromErr(err)

		response := ierr.ErrorResponse{
			Error: ierr.DisplayMessage(err, fallbackDisplay),
		}

		if status >= http.StatusInternalServerError {
			log.Errorw("request failed",
				"method", c.Request.Method,
				"path", c.FullPath(),
				"status", status,
				"request_id", types.GetRequestID(c.Request.Context()),
				"error", err,
			)
			if hub := sentrygin.GetHubFromContext(c); hub != nil {
				hub.CaptureException(err)
			}
		} else {
			response.Details = formatDetails(ierr.ReportableDetails(err))
		}

		c.JSON(status, response)
	}
}

// formatDetails flattens reportable details into a stable key: value list
func formatDetails(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	keys := lo.Keys(details)
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, details[k]))
	}
	return strings.Join(parts, "; ")
}
