package response

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeerp/internal/lifecycle"
	"pipeerp/internal/validation"
)

func TestFailStatusMapping(t *testing.T) {
	ve := &validation.ValidationErrors{}
	ve.Add("qty", "must be a positive number")

	cases := []struct {
		err  error
		code int
		msg  string
	}{
		{NotFound("sales order", "SO-2026-0001"), http.StatusNotFound, "sales order SO-2026-0001 not found"},
		{fmt.Errorf("confirm: %w", lifecycle.SalesOrder.Check(lifecycle.SOClosed, lifecycle.SOConfirmed)), http.StatusConflict, "sales order cannot move from CLOSED to CONFIRMED"},
		{ve, http.StatusBadRequest, "qty: must be a positive number"},
		{fmt.Errorf("load: %w", sql.ErrNoRows), http.StatusNotFound, "not found"},
		{errors.New("disk I/O error"), http.StatusInternalServerError, "internal server error"},
	}
	for _, c := range cases {
		w := httptest.NewRecorder()
		Fail(w, c.err)
		assert.Equal(t, c.code, w.Code, c.msg)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Contains(t, body["error"], c.msg)
	}
}

func TestFailKeepsValidationFields(t *testing.T) {
	ve := &validation.ValidationErrors{}
	ve.Add("customer_id", "is required")
	w := httptest.NewRecorder()
	Fail(w, ve)

	var body struct {
		Fields []validation.ValidationError `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "customer_id", body.Fields[0].Field)
}

func TestCreatedEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	Created(w, map[string]string{"id": "ENQ-2026-0001"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"data":{"id":"ENQ-2026-0001"}}`, w.Body.String())
}
