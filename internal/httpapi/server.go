package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/duisenbekovayan/xivprofit/internal/market"
	"github.com/duisenbekovayan/xivprofit/internal/models"
)

const MaxAmount = 1000

type Market interface {
	Listings(ctx context.Context, itemID int, location string) ([]models.Listing, error)
	LowestUnitPrice(ctx context.Context, itemID int, location string) (float64, error)
	FindCheapest(ctx context.Context, q market.Query) ([]models.Listing, error)
}

type Catalog interface {
	HasItem(id int) bool
	Items() []models.Item
	Recipes() []models.Recipe
	RecipesFor(itemID int) []models.Recipe
	CraftableItems() []models.Item
}

type Server struct {
	srv     *http.Server
	market  Market
	catalog Catalog
	logger  *slog.Logger
}

type Options struct {
	// WebDir, when set, is served under / after the API routes.
	WebDir string
}

func New(addr string, m Market, c Catalog, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	s := &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		market:  m,
		catalog: c,
		logger:  logger.With("component", "http"),
	}
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Get("/listings", s.getListings)
		r.Get("/saleprice", s.getSalePrice)
		r.Get("/cheapestlistings", s.getCheapestListings)
		r.Get("/items", s.getItems)
		r.Get("/recipes", s.getRecipes)
		r.Get("/craftable_items", s.getCraftableItems)
	})

	// static files after the API so /api is never shadowed
	if opts.WebDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(opts.WebDir)))
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) getListings(w http.ResponseWriter, r *http.Request) {
	itemID, location, err := itemAndLocation(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ls, err := s.market.Listings(r.Context(), itemID, location)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ls))
}

func (s *Server) getSalePrice(w http.ResponseWriter, r *http.Request) {
	itemID, location, err := itemAndLocation(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	price, err := s.market.LowestUnitPrice(r.Context(), itemID, location)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(strconv.FormatFloat(price, 'f', -1, 64)))
}

func (s *Server) getCheapestListings(w http.ResponseWriter, r *http.Request) {
	itemID, location, err := itemAndLocation(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	amount, err := strconv.Atoi(q.Get("amount"))
	if err != nil || amount < 1 || amount > MaxAmount {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("amount must be between 1 and %d", MaxAmount))
		return
	}
	hq := false
	if v := q.Get("hq"); v != "" {
		if hq, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "hq must be a boolean")
			return
		}
	}
	if !s.catalog.HasItem(itemID) {
		writeError(w, http.StatusBadRequest, "unknown item")
		return
	}

	ls, err := s.market.FindCheapest(r.Context(), market.Query{ItemID: itemID, Location: location, Amount: amount, HQ: hq})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ls))
}

func (s *Server) getItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.catalog.Items()))
}

func (s *Server) getRecipes(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query().Get("item_id")
	if v == "" {
		writeJSON(w, http.StatusOK, nonNil(s.catalog.Recipes()))
		return
	}
	itemID, err := strconv.Atoi(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "item_id must be an integer")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(s.catalog.RecipesFor(itemID)))
}

func (s *Server) getCraftableItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.catalog.CraftableItems()))
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	// the caller is gone; there is nobody to answer
	if errors.Is(err, context.Canceled) {
		s.logger.Debug("request abandoned",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
		)
		return
	}
	status := statusFor(err)
	s.logger.Warn("request failed",
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"status", status,
		"err", err,
	)
	writeError(w, status, http.StatusText(status))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, market.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"query", r.URL.RawQuery,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func itemAndLocation(r *http.Request) (int, string, error) {
	q := r.URL.Query()
	itemID, err := strconv.Atoi(q.Get("item_id"))
	if err != nil || itemID <= 0 {
		return 0, "", errors.New("item_id must be a positive integer")
	}
	location := q.Get("location")
	if location == "" {
		return 0, "", errors.New("location is required")
	}
	return itemID, location, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func (s *Server) Start() error {
	s.logger.Info("http listening", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }
