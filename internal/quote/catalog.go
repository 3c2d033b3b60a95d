package quote

import (
	"crypto/rand"
	"math/big"
	"slices"

	"github.com/samber/lo"

	"github.com/victornm/misquote/internal/domain"
	"github.com/victornm/misquote/internal/errors"
)

var mockQuotes = []domain.Quote{
	{
		ID:         "1",
		Text:       "The only way to do great work is to love what you do.",
		Author:     "Steve Jobs",
		IsReal:     true,
		Difficulty: domain.DifficultyEasy,
		Category:   "Technology",
	},
	{
		ID:         "2",
		Text:       "Innovation distinguishes between a leader and a follower, especially when you're debugging code at 3 AM.",
		Author:     "Steve Jobs",
		IsReal:     false,
		Difficulty: domain.DifficultyMedium,
		Category:   "Technology",
	},
	{
		ID:         "3",
		Text:       "I have not failed. I've just found 10,000 ways that won't work.",
		Author:     "Thomas Edison",
		IsReal:     true,
		Difficulty: domain.DifficultyEasy,
		Category:   "Science",
	},
	{
		ID:         "4",
		Text:       "Genius is one percent inspiration, ninety-nine percent perspiration, and a really good Wi-Fi connection.",
		Author:     "Thomas Edison",
		IsReal:     false,
		Difficulty: domain.DifficultyHard,
		Category:   "Science",
	},
	{
		ID:         "5",
		Text:       "The way to get started is to quit talking and begin doing.",
		Author:     "Walt Disney",
		IsReal:     true,
		Difficulty: domain.DifficultyMedium,
		Category:   "Business",
	},
	{
		ID:         "6",
		Text:       "All our dreams can come true, if we have the courage to pursue them, and a solid social media strategy.",
		Author:     "Walt Disney",
		IsReal:     false,
		Difficulty: domain.DifficultyHard,
		Category:   "Business",
	},
	{
		ID:         "7",
		Text:       "Be yourself; everyone else is already taken.",
		Author:     "Oscar Wilde",
		IsReal:     true,
		Difficulty: domain.DifficultyEasy,
		Category:   "Literature",
	},
	{
		ID:         "8",
		Text:       "I can resist everything except temptation, and really good memes.",
		Author:     "Oscar Wilde",
		IsReal:     false,
		Difficulty: domain.DifficultyMedium,
		Category:   "Literature",
	},
}

// IntnFunc returns a uniform integer in [0, n).
type IntnFunc func(n int) int

type Config struct {
	// Quotes overrides the built-in catalog.
	Quotes []domain.Quote
	Intn   IntnFunc
}

// Catalog is the fixed, read-only set of quotes a game draws from.
type Catalog struct {
	quotes []domain.Quote
	intn   IntnFunc
}

func NewCatalog(c Config) *Catalog {
	qs := c.Quotes
	if len(qs) == 0 {
		qs = mockQuotes
	}

	intn := c.Intn
	if intn == nil {
		intn = cryptoIntn
	}

	return &Catalog{
		quotes: slices.Clone(qs),
		intn:   intn,
	}
}

// Random picks a quote of the given difficulty, or the first quote of the catalog if none matches.
func (c *Catalog) Random(d domain.Difficulty) domain.Quote {
	candidates := lo.Filter(c.quotes, func(q domain.Quote, _ int) bool {
		return q.Difficulty == d
	})

	if len(candidates) == 0 {
		return c.quotes[0]
	}

	return candidates[c.intn(len(candidates))]
}

func (c *Catalog) Get(id string) (domain.Quote, error) {
	q, ok := lo.Find(c.quotes, func(q domain.Quote) bool {
		return q.ID == id
	})
	if !ok {
		return domain.Quote{}, errors.NotFound("quote not found: id=%s", id)
	}

	return q, nil
}

func (c *Catalog) List() []domain.Quote {
	return slices.Clone(c.quotes)
}

func cryptoIntn(n int) int {
	r, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(r.Int64())
}
