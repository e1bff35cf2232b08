package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/a3tai/mcp-invoice-reader/internal/repository"
)

// errInvalidParam marks a request the client has to fix
var errInvalidParam = errors.New("invalid parameter")

func abort(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, ErrorOut{Detail: detail})
}

// abortErr maps an error to its status code
func abortErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errInvalidParam):
		abort(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		abort(c, http.StatusNotFound, "Invoice not found")
	default:
		abort(c, http.StatusInternalServerError, err.Error())
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidParam, fmt.Sprintf(format, args...))
}

// intQuery reads an integer query parameter bounded by [lo, hi]
func intQuery(c *gin.Context, name string, def, lo, hi int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid("%s must be an integer", name)
	}
	if v < lo || v > hi {
		return 0, invalid("%s must be between %d and %d", name, lo, hi)
	}
	return v, nil
}

func dateQuery(c *gin.Context, name string) (string, error) {
	raw := c.Query(name)
	if raw == "" {
		return "", nil
	}
	if _, err := time.Parse(time.DateOnly, raw); err != nil {
		return "", invalid("%s must be a YYYY-MM-DD date", name)
	}
	return raw, nil
}

// listFilter reads the listing parameters shared by the list and export routes
func listFilter(c *gin.Context, defLimit, maxLimit int) (repository.ListFilter, error) {
	limit, err := intQuery(c, "limit", defLimit, 1, maxLimit)
	if err != nil {
		return repository.ListFilter{}, err
	}
	offset, err := intQuery(c, "offset", 0, 0, int(^uint32(0)>>1))
	if err != nil {
		return repository.ListFilter{}, err
	}
	from, err := dateQuery(c, "date_from")
	if err != nil {
		return repository.ListFilter{}, err
	}
	to, err := dateQuery(c, "date_to")
	if err != nil {
		return repository.ListFilter{}, err
	}
	return repository.ListFilter{
		Limit:    limit,
		Offset:   offset,
		Q:        c.Query("q"),
		DateFrom: from,
		DateTo:   to,
		OrderBy:  c.DefaultQuery("order_by", "created_at"),
		OrderDir: c.DefaultQuery("order_dir", "desc"),
	}, nil
}

func idParam(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, invalid("id must be a UUID")
	}
	return id, nil
}

// separatorQuery reads the single character CSV separator
func separatorQuery(c *gin.Context) (rune, error) {
	raw := c.DefaultQuery("sep", ";")
	if utf8.RuneCountInString(raw) != 1 {
		return 0, invalid("sep must be a single character")
	}
	r, _ := utf8.DecodeRuneInString(raw)
	return r, nil
}
