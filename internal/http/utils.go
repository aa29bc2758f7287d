package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/frevohq/frevo-core/internal/shared/types"
)

// respondResult maps a structured result onto the HTTP response. Failures
// keep status 200: the result envelope, not the transport, carries success.
func respondResult(c *gin.Context, res *types.Result) {
	c.JSON(http.StatusOK, res)
}
