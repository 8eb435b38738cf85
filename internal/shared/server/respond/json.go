package respond

import "github.com/gin-gonic/gin"

// JSON writes payload as the response body with the given status. Success
// responses go through here so the envelope stays uniform with Error.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}
