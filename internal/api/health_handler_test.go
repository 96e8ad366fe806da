package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordlens/wordlens/internal/engine"
	"github.com/wordlens/wordlens/internal/storage"
	"github.com/wordlens/wordlens/internal/testutil"
)

func TestHandleHealth(t *testing.T) {
	newApp := func(t *testing.T, reg *engine.Registry, spool *storage.Spool) *fiber.App {
		t.Helper()
		h := NewHealthHandler(reg, spool, "vlm")
		app := fiber.New()
		app.Get("/health", h.Handle)
		return app
	}

	t.Run("cold engine is still ok", func(t *testing.T) {
		fake := &testutil.FakeEngine{EngineName: "vlm", DeviceName: "api"}
		reg := engine.NewRegistry()
		reg.Register("vlm", fake)
		reg.Register("tesseract", &testutil.FakeEngine{EngineName: "tesseract"})

		spool, err := storage.NewSpool(t.TempDir())
		require.NoError(t, err)

		app := newApp(t, reg, spool)
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var got struct {
			Status      string   `json:"status"`
			EngineReady bool     `json:"engine_ready"`
			Device      string   `json:"device"`
			Engines     []string `json:"engines"`
		}
		raw, _ := io.ReadAll(resp.Body)
		require.NoError(t, json.Unmarshal(raw, &got))

		assert.Equal(t, "ok", got.Status)
		assert.False(t, got.EngineReady, "lazy engine is not ready before first use")
		assert.Equal(t, "api", got.Device)
		assert.Equal(t, []string{"tesseract", "vlm"}, got.Engines)
	})

	t.Run("warm engine reports ready", func(t *testing.T) {
		fake := &testutil.FakeEngine{EngineName: "vlm", DeviceName: "api"}
		reg := engine.NewRegistry()
		reg.Register("vlm", fake)
		require.NoError(t, reg.Warm(context.Background(), "vlm"))

		spool, err := storage.NewSpool(t.TempDir())
		require.NoError(t, err)

		app := newApp(t, reg, spool)
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
		require.NoError(t, err)

		var got struct {
			EngineReady bool `json:"engine_ready"`
		}
		raw, _ := io.ReadAll(resp.Body)
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.True(t, got.EngineReady)
	})

	t.Run("unregistered primary reports unavailable device", func(t *testing.T) {
		reg := engine.NewRegistry()

		spool, err := storage.NewSpool(t.TempDir())
		require.NoError(t, err)

		app := newApp(t, reg, spool)
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
		require.NoError(t, err)

		var got struct {
			Device      string `json:"device"`
			EngineReady bool   `json:"engine_ready"`
		}
		raw, _ := io.ReadAll(resp.Body)
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "unavailable", got.Device)
		assert.False(t, got.EngineReady)
	})
}
