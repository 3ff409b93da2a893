package dto

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/msgflow/internal/domain"
	"github.com/jsamuelsen/msgflow/internal/messaging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewErrorResponse(t *testing.T) {
	got := NewErrorResponse(ErrorCodeNoHandler, "no handler for x")

	assert.Equal(t, &ErrorResponse{
		Error: ErrorDetail{Code: ErrorCodeNoHandler, Message: "no handler for x"},
	}, got)
}

func TestNewErrorResponseWithDetails(t *testing.T) {
	details := map[string]string{"name": "this field is required"}

	got := NewErrorResponseWithDetails(ErrorCodeValidation, "invalid", details).WithTraceID("trace-1")

	assert.Equal(t, ErrorCodeValidation, got.Error.Code)
	assert.Equal(t, details, got.Error.Details)
	assert.Equal(t, "trace-1", got.TraceID)
}

func TestHTTPStatusFromCode(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{ErrorCodeNoHandler, http.StatusNotFound},
		{ErrorCodeConflict, http.StatusConflict},
		{ErrorCodeValidation, http.StatusBadRequest},
		{ErrorCodeBadRequest, http.StatusBadRequest},
		{ErrorCodeUnavailable, http.StatusServiceUnavailable},
		{ErrorCodeTimeout, http.StatusGatewayTimeout},
		{ErrorCodeInternal, http.StatusInternalServerError},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusFromCode(tt.code))
		})
	}
}

func TestPageQuery_Window(t *testing.T) {
	tests := []struct {
		name      string
		query     PageQuery
		max       int
		wantAfter int64
		wantLimit int
	}{
		{name: "first page defaults", query: PageQuery{}, max: 50, wantLimit: DefaultLimit},
		{name: "explicit limit", query: PageQuery{Limit: 5}, max: 50, wantLimit: 5},
		{name: "limit capped", query: PageQuery{Limit: 500}, max: 50, wantLimit: 50},
		{name: "default above max", query: PageQuery{}, max: 10, wantLimit: 10},
		{name: "from cursor", query: PageQuery{Cursor: EncodeCursor(42), Limit: 5}, max: 50, wantAfter: 42, wantLimit: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			after, limit, err := tt.query.Window(tt.max)

			require.NoError(t, err)
			assert.Equal(t, tt.wantAfter, after)
			assert.Equal(t, tt.wantLimit, limit)
		})
	}
}

func TestDecodeCursor(t *testing.T) {
	seq, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Zero(t, seq)

	seq, err = DecodeCursor(EncodeCursor(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), seq)

	for _, bad := range []string{
		"%%%",
		base64.RawURLEncoding.EncodeToString([]byte("42")),
		base64.RawURLEncoding.EncodeToString([]byte("v1:abc")),
		base64.RawURLEncoding.EncodeToString([]byte("v1:-1")),
	} {
		_, err := DecodeCursor(bad)
		require.ErrorIs(t, err, ErrInvalidCursor, bad)
	}

	_, _, err = (&PageQuery{Cursor: "%%%"}).Window(10)
	require.ErrorIs(t, err, ErrInvalidCursor)
}

func TestNewPage(t *testing.T) {
	seq := func(e EventResponse) int64 { return e.Sequence }
	items := []EventResponse{{Sequence: 1}, {Sequence: 2}, {Sequence: 3}}

	page := NewPage(items, 2, seq)

	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	after, err := DecodeCursor(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, int64(2), after)

	last := NewPage(items[:2], 2, seq)
	assert.False(t, last.HasMore)
	assert.Empty(t, last.NextCursor)

	empty := NewPage[EventResponse](nil, 2, seq)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)
}

func TestValidate_MessageRequest(t *testing.T) {
	tests := []struct {
		name      string
		req       MessageRequest
		wantField string
	}{
		{name: "valid", req: MessageRequest{Name: "order.placed"}},
		{name: "valid with id", req: MessageRequest{ID: "6f1c1b4e-8c59-4d0e-9a37-0a7b7d8e3f10", Name: "ping"}},
		{name: "missing name", req: MessageRequest{}, wantField: "name"},
		{name: "bad name", req: MessageRequest{Name: "order placed"}, wantField: "name"},
		{name: "leading dot", req: MessageRequest{Name: ".order"}, wantField: "name"},
		{name: "bad id", req: MessageRequest{ID: "nope", Name: "ping"}, wantField: "id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAll(&tt.req)
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, ValidationErrors(err), tt.wantField)
		})
	}
}

func TestValidateAll_MetaDataRules(t *testing.T) {
	req := MessageRequest{Name: "ping", MetaData: map[string]any{" ": 1}}

	err := ValidateAll(&req)

	require.ErrorIs(t, err, ErrValidation)
	assert.True(t, domain.IsValidation(err))

	tooMany := MessageRequest{Name: "ping", MetaData: map[string]any{}}
	for i := range maxMetaDataEntries + 1 {
		tooMany.MetaData[strings.Repeat("k", i+1)] = i
	}
	require.ErrorIs(t, ValidateAll(&tooMany), ErrValidation)
}

func TestValidate_BatchRequest(t *testing.T) {
	id := "6f1c1b4e-8c59-4d0e-9a37-0a7b7d8e3f10"

	require.NoError(t, ValidateAll(&BatchRequest{Messages: []MessageRequest{{Name: "ping"}, {Name: "ping"}}}))

	err := ValidateAll(&BatchRequest{})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, ValidationErrors(err), "messages")

	err = ValidateAll(&BatchRequest{Messages: []MessageRequest{{Name: "ping"}, {Name: ""}}})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, ValidationErrors(err), "messages[1].name")

	err = ValidateAll(&BatchRequest{Messages: []MessageRequest{{ID: id, Name: "a"}, {ID: id, Name: "b"}}})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "duplicate message id")
}

func TestBindAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{name: "valid", body: `{"name":"ping","payload":{"a":1}}`},
		{name: "malformed", body: `{"name":`, wantErr: ErrBinding},
		{name: "invalid", body: `{"name":"bad name"}`, wantErr: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var req MessageRequest
			err := BindAndValidate(c, &req)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":1}`, string(req.Payload))
		})
	}
}

func TestBindQueryAndValidate(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?limit=5&cursor=abc", nil)

	var p PageQuery
	require.NoError(t, BindQueryAndValidate(c, &p))
	assert.Equal(t, 5, p.Limit)
	assert.Equal(t, "abc", p.Cursor)

	c.Request = httptest.NewRequest(http.MethodGet, "/?limit=-1", nil)
	require.ErrorIs(t, BindQueryAndValidate(c, &PageQuery{}), ErrValidation)

	c.Request = httptest.NewRequest(http.MethodGet, "/?limit=abc", nil)
	require.ErrorIs(t, BindQueryAndValidate(c, &PageQuery{}), ErrBinding)
}

func TestValidationMessage(t *testing.T) {
	type sample struct {
		Name  string `json:"name" validate:"required"`
		Short string `json:"short" validate:"max=2"`
		Count int    `json:"count" validate:"min=3"`
		Kind  string `json:"kind" validate:"omitempty,oneof=a b"`
		Blank string `json:"blank" validate:"notempty"`
	}

	err := Validate(sample{Short: "abc", Count: 1, Kind: "c", Blank: "  "})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	fields := ValidationErrors(err)
	assert.Equal(t, "this field is required", fields["name"])
	assert.Equal(t, "must be at most 2 characters", fields["short"])
	assert.Equal(t, "must be at least 3", fields["count"])
	assert.Equal(t, "must be one of: a b", fields["kind"])
	assert.Equal(t, "must not be empty", fields["blank"])
}

func TestToMessage(t *testing.T) {
	req := MessageRequest{
		ID:       "6f1c1b4e-8c59-4d0e-9a37-0a7b7d8e3f10",
		Name:     "record",
		Payload:  json.RawMessage(`{"events":[]}`),
		MetaData: map[string]any{"tenant": "acme", messaging.KeyTraceID: "client-trace"},
	}

	msg := req.ToMessage(messaging.MetaData{messaging.KeyTraceID: "header-trace", "request_id": "req-1"})

	assert.Equal(t, req.ID, msg.ID)
	assert.Equal(t, "record", msg.Name)
	assert.Equal(t, json.RawMessage(`{"events":[]}`), msg.Payload)
	assert.Equal(t, "acme", msg.MetaData.GetString("tenant"))
	assert.Equal(t, "client-trace", msg.MetaData.GetString(messaging.KeyTraceID))
	assert.Equal(t, "req-1", msg.MetaData.GetString("request_id"))

	generated := (&MessageRequest{Name: "ping"}).ToMessage(nil)
	assert.NotEmpty(t, generated.ID)
	assert.Nil(t, generated.Payload)
}

func TestNewEventResponse(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	got := NewEventResponse(domain.Event{
		Sequence:   3,
		MessageID:  "m-1",
		Name:       "order.placed",
		Payload:    []byte(`{"id":1}`),
		RecordedAt: at,
	})

	assert.Equal(t, int64(3), got.Sequence)
	assert.JSONEq(t, `{"id":1}`, string(got.Payload))
	assert.NotNil(t, got.MetaData)
	assert.Equal(t, at, got.RecordedAt)
}
