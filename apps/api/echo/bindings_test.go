package echoapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqasys/langcsebkg5-sub007/core"
)

func queryContext(query string) echo.Context {
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func Test_orderingParams(t *testing.T) {
	tests := []struct {
		query string
		want  []core.DBOrdering
	}{
		{"", nil},
		{"ordering=name", []core.DBOrdering{{Field: "name", Ascending: true}}},
		{"ordering=-created_at,%20name,,-", []core.DBOrdering{
			{Field: "created_at", Ascending: false},
			{Field: "name", Ascending: true},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, orderingParams(queryContext(tt.query)))
		})
	}
}

func Test_boolParam(t *testing.T) {
	got, err := boolParam(queryContext(""), "active")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = boolParam(queryContext("active=false"), "active")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, *got)

	_, err = boolParam(queryContext("active=nope"), "active")
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
}

func Test_dateParam(t *testing.T) {
	got, err := dateParam(queryContext("from=2024-03-01"), "from")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = dateParam(queryContext("from=2024-03-01T10:00:00%2B02:00"), "from")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), got)

	got, err = dateParam(queryContext(""), "from")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = dateParam(queryContext("from=yesterday"), "from")
	assert.True(t, core.IsValidationError(err))
}

func Test_listParams(t *testing.T) {
	assert.Empty(t, listParams(queryContext(""), "id"))
	assert.Equal(t, []string{"a", "b", "c"}, listParams(queryContext("id=a,b&id=c&id=a&id="), "id"))
}
