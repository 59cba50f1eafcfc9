package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trash2action-backend/internal/model"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTokens map[string]model.Caller

func (s stubTokens) Validate(token string) (model.Caller, error) {
	if c, ok := s[token]; ok {
		return c, nil
	}
	return model.Caller{}, errors.New("bad token")
}

func whoami(c *fiber.Ctx) error {
	who, ok := CallerFrom(c)
	if !ok {
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	return c.SendString(who.ID)
}

func TestAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/me", Auth(stubTokens{"good": {ID: "u1", Role: model.RoleUser}}), whoami)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestSharedKeys(t *testing.T) {
	app := fiber.New()
	app.Get("/server", ServerKey("s3cret"), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	app.Get("/admin", AdminKey(""), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	check := func(path, header, key string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if key != "" {
			req.Header.Set(header, key)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusNoContent, check("/server", "X-Server-Key", "s3cret"))
	assert.Equal(t, http.StatusForbidden, check("/server", "X-Server-Key", "s3cre"))
	assert.Equal(t, http.StatusForbidden, check("/server", "X-Server-Key", ""))
	assert.Equal(t, http.StatusForbidden, check("/admin", "X-Admin-Key", "anything"), "empty configured key denies all")
}

func TestLogger_OnlyLogsFailuresAndSlowRequests(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(Logger(zerolog.New(&buf), 50*time.Millisecond))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/missing", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNotFound) })
	app.Get("/slow", func(c *fiber.Ctx) error {
		time.Sleep(60 * time.Millisecond)
		return c.SendStatus(fiber.StatusOK)
	})

	for _, path := range []string{"/ok", "/missing", "/slow"} {
		_, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
		require.NoError(t, err)
	}

	out := buf.String()
	assert.NotContains(t, out, `"/ok"`)
	assert.Contains(t, out, `"/missing"`)
	assert.Contains(t, out, `"/slow"`)
}
