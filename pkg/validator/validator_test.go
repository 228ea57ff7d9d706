package validator

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reviewInput struct {
	Rating  int    `json:"rating" validate:"gte=1,lte=5"`
	Comment string `json:"comment" validate:"max=10"`
}

type productInput struct {
	Name         string   `json:"name" validate:"required"`
	Price        *float64 `json:"price" validate:"required,gte=0"`
	CountInStock int      `json:"countInStock" validate:"gte=0"`
	Internal     string   `json:"-" validate:"omitempty,min=3"`
	NoTag        string   `validate:"omitempty,uuid4"`
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	return valErr.Fields()
}

func TestValidate_Success(t *testing.T) {
	assert.NoError(t, Validate(reviewInput{Rating: 5, Comment: "great"}))
}

func TestValidate_UsesJSONFieldNames(t *testing.T) {
	err := Validate(productInput{CountInStock: -1})
	require.Error(t, err)

	fields := fieldsOf(t, err)
	assert.Equal(t, "is required", fields["name"])
	assert.Equal(t, "is required", fields["price"])
	assert.Contains(t, fields["countInStock"], "greater than or equal to 0")
}

func TestValidate_FallsBackToStructFieldName(t *testing.T) {
	price := 1.0
	err := Validate(productInput{Name: "x", Price: &price, NoTag: "nope"})
	require.Error(t, err)
	assert.Equal(t, "must be a valid UUID", fieldsOf(t, err)["NoTag"])
}

func TestValidate_RatingOutOfRange(t *testing.T) {
	tests := []struct {
		rating int
		msg    string
	}{
		{0, "greater than or equal to 1"},
		{6, "less than or equal to 5"},
	}

	for _, tt := range tests {
		err := Validate(reviewInput{Rating: tt.rating})
		require.Error(t, err)
		assert.Contains(t, fieldsOf(t, err)["rating"], tt.msg)
	}
}

func TestValidate_MaxLengthOnString(t *testing.T) {
	err := Validate(reviewInput{Rating: 3, Comment: "this comment is too long"})
	require.Error(t, err)
	assert.Equal(t, "must be at most 10 characters", fieldsOf(t, err)["comment"])
}

func TestValidationError_ErrorString(t *testing.T) {
	err := Validate(reviewInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field 'rating'")
}

func TestDecodeAndValidate_Success(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"rating":4,"comment":"ok"}`))

	var in reviewInput
	require.NoError(t, DecodeAndValidate(req, &in))
	assert.Equal(t, 4, in.Rating)
	assert.Equal(t, "ok", in.Comment)
}

func TestDecodeAndValidate_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{invalid"))

	var in reviewInput
	err := DecodeAndValidate(req, &in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}

func TestDecodeAndValidate_ValidationFails(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"rating":7}`))

	var in reviewInput
	err := DecodeAndValidate(req, &in)
	require.Error(t, err)

	var valErr *ValidationError
	assert.ErrorAs(t, err, &valErr)
}

func TestDecodeAndValidate_BodyTooLarge(t *testing.T) {
	big := `{"comment":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))

	var in reviewInput
	err := DecodeAndValidate(req, &in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}
