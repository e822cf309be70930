package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dErrors "baseid/pkg/domain-errors"
)

type nameRequest struct {
	Name string `json:"name" validate:"required"`
}

func TestDecode(t *testing.T) {
	t.Run("oversized body is 413", func(t *testing.T) {
		body := `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		var dst nameRequest
		err := Decode(req, &dst)
		if !dErrors.HasCode(err, dErrors.CodePayloadTooLarge) {
			t.Fatalf("expected payload_too_large, got %v", err)
		}

		w := httptest.NewRecorder()
		WriteError(w, err)
		if w.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, w.Code)
		}
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
		var dst nameRequest
		if err := Decode(req, &dst); !dErrors.HasCode(err, dErrors.CodeBadRequest) {
			t.Fatalf("expected bad_request, got %v", err)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		var dst nameRequest
		if err := Decode(req, &dst); !dErrors.HasCode(err, dErrors.CodeBadRequest) {
			t.Fatalf("expected bad_request, got %v", err)
		}
	})

	t.Run("validation runs after decoding", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		var dst nameRequest
		if err := Decode(req, &dst); !dErrors.HasCode(err, dErrors.CodeValidation) {
			t.Fatalf("expected validation_error, got %v", err)
		}
	})
}
