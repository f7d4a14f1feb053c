package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, method jwt.SigningMethod, key any, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(method, Claims{
		Email: "sales@dealer.test",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAuthMiddleware(t *testing.T) {
	valid := signToken(t, jwt.SigningMethodHS256, testSecret, time.Now().Add(time.Hour))
	tests := []struct {
		name           string
		header         string
		expectedStatus int
	}{
		{name: "success - valid bearer token", header: "Bearer " + valid, expectedStatus: http.StatusOK},
		{name: "unauthorized - missing header", header: "", expectedStatus: http.StatusUnauthorized},
		{name: "unauthorized - wrong scheme", header: "Basic " + valid, expectedStatus: http.StatusUnauthorized},
		{
			name:           "unauthorized - expired token",
			header:         "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, time.Now().Add(-time.Minute)),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "unauthorized - signed with another secret",
			header:         "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), time.Now().Add(time.Hour)),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "unauthorized - HS512 not accepted",
			header:         "Bearer " + signToken(t, jwt.SigningMethodHS512, testSecret, time.Now().Add(time.Hour)),
			expectedStatus: http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			r := gin.New()
			var gotUser string
			r.GET("/protected", AuthMiddleware(testSecret), func(c *gin.Context) {
				gotUser, _ = GetUserID(c)
				c.Status(http.StatusOK)
			})

			req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected status %d, got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedStatus == http.StatusOK && gotUser != "42" {
				t.Errorf("[%s] expected user 42 in context, got %q", tt.name, gotUser)
			}
		})
	}
}
