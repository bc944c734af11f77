package pagination

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFromRequest(t *testing.T) {
	tests := []struct {
		query string
		want  Pagination
	}{
		{"", Pagination{Page: 1, Limit: 10, Offset: 0}},
		{"?page=3&limit=20", Pagination{Page: 3, Limit: 20, Offset: 40}},
		{"?page=0&limit=-5", Pagination{Page: 1, Limit: 10, Offset: 0}},
		{"?page=abc&limit=500", Pagination{Page: 1, Limit: 100, Offset: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return c.JSON(ParseFromRequest(c))
			})
			resp, err := app.Test(httptest.NewRequest("GET", "/"+tt.query, nil))
			require.NoError(t, err)

			var got Pagination
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResponseTotalPages(t *testing.T) {
	m := Response(Pagination{Page: 1, Limit: 10, Total: 21}, []int{})
	assert.Equal(t, int64(3), m["meta"].(fiber.Map)["total_pages"])
}
