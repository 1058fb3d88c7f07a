package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mmcdole/b4/internal/docstore"
	"github.com/mmcdole/b4/internal/domain"
	"github.com/mmcdole/b4/internal/metrics"
	"github.com/mmcdole/b4/internal/pipeline"
)

// Operation names used in logs and metrics
const (
	OpCreate      = "create"
	OpFetch       = "fetch"
	OpRename      = "rename"
	OpAddBook     = "add_book"
	OpRemoveBook  = "remove_book"
	OpSearchBooks = "search_books"
)

// Store is the document store surface the operations need
type Store interface {
	Create(ctx context.Context, doc any) (docstore.Response, error)
	Get(ctx context.Context, id string) (docstore.Response, error)
	Put(ctx context.Context, id string, doc any) (docstore.Response, error)
}

// Observer is told how each operation ended
type Observer interface {
	ObserveOperation(operation, outcome string)
}

// Options configures a Service built on HTTP document stores
type Options struct {
	BundleStoreURL string
	BookStoreURL   string
	HTTPClient     *http.Client
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// Service runs bundle operations against the bundle and book stores.
// It holds no per-operation state; every call gets its own pipeline.
type Service struct {
	bundles  Store
	books    Store
	logger   *slog.Logger
	observer Observer
}

// New builds a Service talking to the configured store URLs
func New(opts Options) (*Service, error) {
	if opts.BundleStoreURL == "" {
		return nil, fmt.Errorf("bundle store URL is required")
	}
	if opts.BookStoreURL == "" {
		return nil, fmt.Errorf("book store URL is required")
	}

	clientOpts := docstore.Options{
		HTTPClient: opts.HTTPClient,
		Logger:     opts.Logger,
		Recorder:   opts.Metrics,
	}
	bundles := docstore.NewClient("bundles", opts.BundleStoreURL, clientOpts)
	books := docstore.NewClient("books", opts.BookStoreURL, clientOpts)

	return NewService(bundles, books, opts.Logger, opts.Metrics), nil
}

// NewService creates a Service over the given stores. observer may be nil.
func NewService(bundles, books Store, logger *slog.Logger, observer Observer) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{bundles: bundles, books: books, logger: logger, observer: observer}
}

// state is what one operation carries from step to step
type state struct {
	bundle domain.Bundle
	book   domain.Book
}

// Create stores a new, empty bundle and relays the store's answer
func (s *Service) Create(ctx context.Context, name string) pipeline.Result {
	res := pipeline.Run(ctx, s.logger, OpCreate, state{bundle: domain.NewBundle(name)},
		pipeline.Finish("create bundle", func(ctx context.Context, st state) (docstore.Response, error) {
			return s.bundles.Create(ctx, st.bundle)
		}),
	)
	return s.finish(OpCreate, res, "name", name)
}

// Fetch returns the parsed bundle, or the store's answer when it is not 200
func (s *Service) Fetch(ctx context.Context, id string) pipeline.Result {
	res := pipeline.Run(ctx, s.logger, OpFetch, state{},
		s.getBundle(id),
		pipeline.Respond("render bundle", func(st state) (pipeline.Result, error) {
			return pipeline.JSON(http.StatusOK, st.bundle)
		}),
	)
	return s.finish(OpFetch, res, "bundle", id)
}

// Rename sets the bundle's name and writes it back
func (s *Service) Rename(ctx context.Context, id, name string) pipeline.Result {
	res := pipeline.Run(ctx, s.logger, OpRename, state{},
		s.getBundle(id),
		pipeline.Finish("put bundle", func(ctx context.Context, st state) (docstore.Response, error) {
			return s.bundles.Put(ctx, id, st.bundle.WithName(name))
		}),
	)
	return s.finish(OpRename, res, "bundle", id, "name", name)
}

// AddBook looks the book up in the book store and adds it to the bundle.
// A failed book lookup is relayed as-is and leaves the bundle alone.
func (s *Service) AddBook(ctx context.Context, id, bookID string) pipeline.Result {
	res := pipeline.Run(ctx, s.logger, OpAddBook, state{},
		s.getBundle(id),
		pipeline.Call("get book", http.StatusOK,
			func(ctx context.Context, _ state) (docstore.Response, error) {
				return s.books.Get(ctx, bookID)
			},
			func(st state, resp docstore.Response) (state, error) {
				var book domain.Book
				if err := docstore.Decode(resp, &book); err != nil {
					return st, err
				}
				if book.ID == "" {
					book.ID = bookID
				}
				st.book = book
				return st, nil
			},
		),
		pipeline.Finish("put bundle", func(ctx context.Context, st state) (docstore.Response, error) {
			return s.bundles.Put(ctx, id, st.bundle.WithBook(st.book))
		}),
	)
	return s.finish(OpAddBook, res, "bundle", id, "book", bookID)
}

// RemoveBook drops a book from the bundle. Removing a book the bundle does
// not hold is a conflict and writes nothing.
func (s *Service) RemoveBook(ctx context.Context, id, bookID string) pipeline.Result {
	res := pipeline.Run(ctx, s.logger, OpRemoveBook, state{},
		s.getBundle(id),
		pipeline.Check("bundle has book", func(st state) *pipeline.Result {
			if st.bundle.HasBook(bookID) {
				return nil
			}
			conflict := pipeline.Conflicted(domain.ReasonBookNotInBundle)
			return &conflict
		}),
		pipeline.Finish("put bundle", func(ctx context.Context, st state) (docstore.Response, error) {
			return s.bundles.Put(ctx, id, st.bundle.WithoutBook(bookID))
		}),
	)
	return s.finish(OpRemoveBook, res, "bundle", id, "book", bookID)
}

// getBundle is the read every bundle operation but Create starts with
func (s *Service) getBundle(id string) pipeline.Step[state] {
	return pipeline.Call("get bundle", http.StatusOK,
		func(ctx context.Context, _ state) (docstore.Response, error) {
			return s.bundles.Get(ctx, id)
		},
		func(st state, resp docstore.Response) (state, error) {
			var b domain.Bundle
			if err := docstore.Decode(resp, &b); err != nil {
				return st, err
			}
			st.bundle = b
			return st, nil
		},
	)
}

func (s *Service) finish(op string, res pipeline.Result, attrs ...any) pipeline.Result {
	if s.observer != nil {
		s.observer.ObserveOperation(op, res.Kind.String())
	}

	attrs = append(attrs, "operation", op, "outcome", res.Kind.String(), "status", res.Status)
	switch res.Kind {
	case pipeline.GatewayFailure:
		s.logger.Error("bundle operation failed", append(attrs, "reason", res.Reason)...)
	case pipeline.Conflict:
		s.logger.Warn("bundle operation conflicted", append(attrs, "reason", res.Reason)...)
	default:
		s.logger.Info("bundle operation finished", attrs...)
	}
	return res
}
