package handlers

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"dailyalchemy/internal/apperr"
	"dailyalchemy/internal/logger"
)

func TestRespondWithErrorWritesStatusAndBody(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind apperr.Kind
		wantMsg  string
	}{
		{name: "client error", err: apperr.New(apperr.KindInvalidName, "name is empty"), wantCode: 400, wantKind: apperr.KindInvalidName, wantMsg: "name is empty"},
		{name: "busy", err: apperr.New(apperr.KindBusyTryAgain, "busy"), wantCode: 423, wantKind: apperr.KindBusyTryAgain, wantMsg: "busy"},
		{name: "oracle down", err: apperr.Wrap(apperr.KindOracleUnavailable, errors.New("dial tcp: refused")), wantCode: 503, wantKind: apperr.KindOracleUnavailable, wantMsg: ErrOracleUnavailable},
		{name: "plain error", err: errors.New("disk full"), wantCode: 500, wantKind: apperr.KindInternal, wantMsg: ErrInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondWithError(recorder, logger.NewNop(), tt.err)

			if recorder.Code != tt.wantCode {
				t.Fatalf("expected status %d, got %d", tt.wantCode, recorder.Code)
			}
			var body errorBody
			if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid body: %v", err)
			}
			if body.Error.Code != tt.wantKind {
				t.Errorf("code = %q, want %q", body.Error.Code, tt.wantKind)
			}
			if body.Error.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", body.Error.Message, tt.wantMsg)
			}
			if strings.Contains(recorder.Body.String(), "refused") || strings.Contains(recorder.Body.String(), "disk full") {
				t.Error("server-side cause leaked to the client")
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"name":"fire"}`},
		{name: "empty", body: ``, wantErr: true},
		{name: "unknown field", body: `{"name":"fire","extra":1}`, wantErr: true},
		{name: "trailing", body: `{"name":"fire"}{"name":"water"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))
			var v struct {
				Name string `json:"name"`
			}
			err := decodeJSON(httptest.NewRecorder(), r, &v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && apperr.KindOf(err) != apperr.KindInvalidRequest {
				t.Errorf("kind = %s, want InvalidRequest", apperr.KindOf(err))
			}
		})
	}
}
