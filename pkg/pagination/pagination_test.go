package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func parseQuery(t *testing.T, query string) Params {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?"+query, nil)
	return Parse(c)
}

func TestParseDefaults(t *testing.T) {
	p := parseQuery(t, "")
	assert.Equal(t, DefaultPage, p.Page)
	assert.Equal(t, DefaultLimit, p.Limit)
	assert.Equal(t, 0, p.Offset)
}

func TestParseClampsAndFallsBack(t *testing.T) {
	cases := []struct {
		query            string
		wantPage, wantLn int
	}{
		{"page=3&limit=10", 3, 10},
		{"page=0&limit=0", DefaultPage, DefaultLimit},
		{"page=-2&limit=-5", DefaultPage, DefaultLimit},
		{"page=abc&limit=xyz", DefaultPage, DefaultLimit},
		{"limit=9999", DefaultPage, MaxLimit},
	}

	for _, tc := range cases {
		p := parseQuery(t, tc.query)
		assert.Equal(t, tc.wantPage, p.Page, tc.query)
		assert.Equal(t, tc.wantLn, p.Limit, tc.query)
		assert.Equal(t, (tc.wantPage-1)*tc.wantLn, p.Offset, tc.query)
	}
}
