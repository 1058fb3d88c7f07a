package bundle

import (
	"context"
	"net/http"
	"sort"
	"strings"

	fuzzysearch "github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sahilm/fuzzy"

	"github.com/mmcdole/b4/internal/domain"
	"github.com/mmcdole/b4/internal/pipeline"
)

// titleIndex implements sahilm/fuzzy.Source over a bundle's books
type titleIndex struct {
	refs        []domain.BookRef
	lowerTitles []string
}

// String returns the lowercase title at index i (implements fuzzy.Source)
func (idx *titleIndex) String(i int) string { return idx.lowerTitles[i] }

// Len returns the number of books (implements fuzzy.Source)
func (idx *titleIndex) Len() int { return len(idx.refs) }

func newTitleIndex(books map[string]string) *titleIndex {
	idx := &titleIndex{
		refs:        make([]domain.BookRef, 0, len(books)),
		lowerTitles: make([]string, 0, len(books)),
	}
	for id, title := range books {
		idx.refs = append(idx.refs, domain.BookRef{ID: id, Title: title})
	}
	// Stable order so equal scores rank the same way every time
	sort.Slice(idx.refs, func(i, j int) bool {
		if idx.refs[i].Title != idx.refs[j].Title {
			return idx.refs[i].Title < idx.refs[j].Title
		}
		return idx.refs[i].ID < idx.refs[j].ID
	})
	for _, ref := range idx.refs {
		idx.lowerTitles = append(idx.lowerTitles, strings.ToLower(ref.Title))
	}
	return idx
}

// SearchBooks lists the bundle's books whose titles match query, best
// match first. An empty query lists every book by title.
func (s *Service) SearchBooks(ctx context.Context, id, query string) pipeline.Result {
	res := pipeline.Run(ctx, s.logger, OpSearchBooks, state{},
		s.getBundle(id),
		pipeline.Respond("rank books", func(st state) (pipeline.Result, error) {
			return pipeline.JSON(http.StatusOK, RankBooks(st.bundle.Books, query))
		}),
	)
	return s.finish(OpSearchBooks, res, "bundle", id, "query", query)
}

// RankBooks orders books by how well their titles match query. Titles that
// only match once accents are folded away (e.g. "miserables") come from
// the normalized fallback.
func RankBooks(books map[string]string, query string) []domain.BookRef {
	idx := newTitleIndex(books)

	query = strings.TrimSpace(query)
	if query == "" {
		return idx.refs
	}

	results := make([]domain.BookRef, 0)

	matches := fuzzy.FindFrom(strings.ToLower(query), idx)
	if len(matches) > 0 {
		for _, m := range matches {
			results = append(results, idx.refs[m.Index])
		}
		return results
	}

	titles := make([]string, len(idx.refs))
	for i, ref := range idx.refs {
		titles[i] = ref.Title
	}
	ranks := fuzzysearch.RankFindNormalizedFold(query, titles)
	sort.Stable(ranks)
	for _, r := range ranks {
		results = append(results, idx.refs[r.OriginalIndex])
	}
	return results
}
