package quote_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/misquote/internal/domain"
	"github.com/victornm/misquote/internal/errors"
	"github.com/victornm/misquote/internal/quote"
)

func TestCatalog_Random(t *testing.T) {
	tests := map[string]struct {
		config     quote.Config
		difficulty domain.Difficulty
		wantIDs    []string
	}{
		"should only return quotes of the requested difficulty": {
			difficulty: domain.DifficultyHard,
			wantIDs:    []string{"4", "6"},
		},
		"should cover every easy quote": {
			difficulty: domain.DifficultyEasy,
			wantIDs:    []string{"1", "3", "7"},
		},
		"should fall back to the first quote when nothing matches": {
			config: quote.Config{
				Quotes: []domain.Quote{
					{ID: "a", Difficulty: domain.DifficultyEasy},
					{ID: "b", Difficulty: domain.DifficultyEasy},
				},
			},
			difficulty: domain.DifficultyHard,
			wantIDs:    []string{"a"},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			next := 0
			tt.config.Intn = func(n int) int {
				i := next % n
				next++
				return i
			}
			c := quote.NewCatalog(tt.config)

			seen := make(map[string]bool)
			for range 12 {
				q := c.Random(tt.difficulty)
				seen[q.ID] = true
			}

			got := make([]string, 0, len(seen))
			for id := range seen {
				got = append(got, id)
			}
			assert.ElementsMatch(t, tt.wantIDs, got)
		})
	}
}

func TestCatalog_Get(t *testing.T) {
	c := quote.NewCatalog(quote.Config{})

	q, err := c.Get("7")
	require.NoError(t, err)
	require.Equal(t, "Oscar Wilde", q.Author)
	require.True(t, q.IsReal)

	_, err = c.Get("99")
	require.True(t, errors.Is(err, errors.CodeNotFound))

	require.Len(t, c.List(), 8)
}
