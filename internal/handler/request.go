package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/josh-kwaku/brokerage-ledger/internal/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	maxBodyBytes    = 1 << 20
)

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return false
	}
	return true
}

// parsePage reads limit and offset query parameters.
func parsePage(r *http.Request) (limit, offset int, fields []FieldError) {
	limit, offset = defaultPageSize, 0
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			fields = append(fields, FieldError{Field: "limit", Message: "must be between 1 and " + strconv.Itoa(maxPageSize)})
		} else {
			limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fields = append(fields, FieldError{Field: "offset", Message: "must be zero or greater"})
		} else {
			offset = n
		}
	}
	return limit, offset, fields
}

func parseAmount(field, raw string, fields []FieldError) (domain.Money, []FieldError) {
	m, fields, ok := parseMoneyField(field, raw, fields)
	if ok && !m.IsPositive() {
		return domain.Zero, append(fields, FieldError{Field: field, Message: "must be greater than 0"})
	}
	return m, fields
}

// parsePrice is parseAmount that also admits zero.
func parsePrice(field, raw string, fields []FieldError) (domain.Money, []FieldError) {
	m, fields, ok := parseMoneyField(field, raw, fields)
	if ok && m.IsNegative() {
		return domain.Zero, append(fields, FieldError{Field: field, Message: "must be zero or greater"})
	}
	return m, fields
}

func parseMoneyField(field, raw string, fields []FieldError) (domain.Money, []FieldError, bool) {
	if raw == "" {
		return domain.Zero, append(fields, FieldError{Field: field, Message: "required"}), false
	}
	m, err := domain.ParseMoney(raw)
	if err != nil {
		return domain.Zero, append(fields, FieldError{Field: field, Message: "must be a decimal with at most two places"}), false
	}
	return m, fields, true
}
