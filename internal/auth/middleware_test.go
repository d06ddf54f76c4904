package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireToken(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name           string
		configured     string
		header         string
		expectedStatus int
	}{
		{
			name:           "valid bearer token",
			configured:     "secret-token",
			header:         "Bearer secret-token",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "bearer scheme is case-insensitive",
			configured:     "secret-token",
			header:         "bearer secret-token",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "wrong token",
			configured:     "secret-token",
			header:         "Bearer wrong",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "missing header",
			configured:     "secret-token",
			header:         "",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "malformed header",
			configured:     "secret-token",
			header:         "secret-token",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "wrong scheme",
			configured:     "secret-token",
			header:         "Basic secret-token",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "empty configured token disables the check",
			configured:     "",
			header:         "",
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireToken(tt.configured)(next)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}

func TestValidateToken(t *testing.T) {
	assert.True(t, ValidateToken("secret", "secret"))
	assert.False(t, ValidateToken("secret", "wrong"))
	assert.False(t, ValidateToken("secret", ""))
	// Empty configured token accepts anything.
	assert.True(t, ValidateToken("", "anything"))
}
