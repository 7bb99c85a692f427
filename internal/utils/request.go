package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetPagination extracts page/limit from the query string for
// GET /status/lockouts, defaulting to page 1 of 10 and capping the page
// size so a misbehaving client can't force a full-table scan of the
// lockout set.
func GetPagination(c *gin.Context) (page, limit int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err = strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	return page, limit
}

// GetOffset converts a 1-indexed page number and page size into a slice
// start offset.
func GetOffset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}
