package handlers

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

type page struct {
	Page    int
	PerPage int
}

func (p page) offset() int { return (p.Page - 1) * p.PerPage }

type Pagination struct {
	Page    int   `json:"page"`
	Pages   int   `json:"pages"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
	HasNext bool  `json:"has_next"`
	HasPrev bool  `json:"has_prev"`
}

func readPage(c *gin.Context) page {
	p := page{Page: 1, PerPage: defaultPerPage}
	if n, err := strconv.Atoi(c.Query("page")); err == nil && n > 0 {
		p.Page = n
	}
	if n, err := strconv.Atoi(c.Query("per_page")); err == nil && n > 0 {
		p.PerPage = n
	}
	if p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	return p
}

func (p page) result(total int64) Pagination {
	pages := int(math.Ceil(float64(total) / float64(p.PerPage)))
	return Pagination{
		Page:    p.Page,
		Pages:   pages,
		PerPage: p.PerPage,
		Total:   total,
		HasNext: p.Page < pages,
		HasPrev: p.Page > 1,
	}
}

// optionalUUID parses a query parameter; a missing value is uuid.Nil.
func optionalUUID(c *gin.Context, name string) (uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}
