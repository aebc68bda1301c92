package shared

import (
	"crypto/rand"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

const TimeFormat = "2006-01-02T15:04:05Z07:00"

type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringSlice", value)
	}

	return json.Unmarshal(bytes, s)
}

func NewID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func FormatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatTime(*t)
	return &s
}

// Pagination reads limit/offset query params, clamping limit to [1, max].
func Pagination(c echo.Context, defaultLimit, maxLimit int) (limit, offset int) {
	limit = defaultLimit
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= maxLimit {
		limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o >= 0 {
		offset = o
	}
	return limit, offset
}

type Role string

const (
	RoleCustomer Role = "customer"
	RoleExpert   Role = "expert"
	RoleAdmin    Role = "admin"
)

func (r Role) String() string {
	return string(r)
}

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleExpert, RoleAdmin:
		return true
	}
	return false
}

type ExpertCategory string

const (
	ExpertCategoryCareer    ExpertCategory = "career"
	ExpertCategoryTech      ExpertCategory = "technology"
	ExpertCategoryBusiness  ExpertCategory = "business"
	ExpertCategoryFinance   ExpertCategory = "finance"
	ExpertCategoryHealth    ExpertCategory = "health"
	ExpertCategoryLegal     ExpertCategory = "legal"
	ExpertCategoryEducation ExpertCategory = "education"
	ExpertCategoryDesign    ExpertCategory = "design"
	ExpertCategoryOther     ExpertCategory = "other"
)
