package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/cadenza-app/cadenza/internal/archive"
	"github.com/cadenza-app/cadenza/internal/blob"
	"github.com/cadenza-app/cadenza/internal/catalog"
	"github.com/cadenza-app/cadenza/internal/handler"
	"github.com/cadenza-app/cadenza/internal/identity"
	"github.com/cadenza-app/cadenza/internal/middleware"
	"github.com/cadenza-app/cadenza/internal/payment"
	"github.com/cadenza-app/cadenza/internal/playlist"
	"github.com/cadenza-app/cadenza/internal/social"
	"github.com/cadenza-app/cadenza/internal/store"
	"github.com/cadenza-app/cadenza/internal/subscription"
)

type Server struct {
	db             *sql.DB
	playlistH      *handler.PlaylistHandler
	socialH        *handler.SocialHandler
	subscriptionH  *handler.SubscriptionHandler
	catalogH       *handler.CatalogHandler
	userH          *handler.UserHandler
	snapshotH      *handler.SnapshotHandler
	provider       identity.Provider
	rateLimiter    *middleware.RateLimiter
	archiveManager *archive.Manager
	logger         *slog.Logger
}

func New(db *sql.DB, provider identity.Provider, gateway payment.Gateway, blobs blob.Store, archiveCfg archive.Config, logger *slog.Logger) *Server {
	userStore := store.NewUserStore(db)
	planStore := store.NewPlanStore(db)
	uploadStore := store.NewUploadStore(db)
	snapshotStore := store.NewSnapshotStore(db)

	playlistSvc := playlist.NewService(db)
	socialSvc := social.NewService(db)
	subscriptionSvc := subscription.NewService(db, gateway)
	catalogSvc := catalog.NewService(db)

	archiveMgr := archive.NewManager(archiveCfg, db, blobs, snapshotStore, logger.With("component", "archive"))

	return &Server{
		db:             db,
		playlistH:      handler.NewPlaylistHandler(playlistSvc, logger.With("component", "playlist")),
		socialH:        handler.NewSocialHandler(socialSvc, userStore, logger.With("component", "social")),
		subscriptionH:  handler.NewSubscriptionHandler(subscriptionSvc, planStore, logger.With("component", "subscription")),
		catalogH:       handler.NewCatalogHandler(catalogSvc, uploadStore, blobs, logger.With("component", "catalog")),
		userH:          handler.NewUserHandler(userStore, logger.With("component", "user")),
		snapshotH:      handler.NewSnapshotHandler(archiveMgr, snapshotStore, logger.With("component", "snapshot")),
		provider:       provider,
		rateLimiter:    middleware.NewRateLimiter(),
		archiveManager: archiveMgr,
		logger:         logger,
	}
}

// ArchiveManager returns the snapshot manager so main can start and stop it.
func (s *Server) ArchiveManager() *archive.Manager {
	return s.archiveManager
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("POST /api/users", s.rateLimitedHandler(s.userH.Create))
	outerMux.HandleFunc("GET /api/plans", s.subscriptionH.ListPlans)

	// Protected routes behind bearer-token auth
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.provider)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Users
	mux.HandleFunc("GET /api/users/{id}", s.userH.Get)
	mux.HandleFunc("GET /api/users/{id}/follow-counts", s.socialH.FollowCounts)

	// Playlists
	mux.HandleFunc("POST /api/playlists", s.playlistH.Create)
	mux.HandleFunc("GET /api/playlists", s.playlistH.ListMine)
	mux.HandleFunc("GET /api/playlists/{id}", s.playlistH.Get)
	mux.HandleFunc("PUT /api/playlists/{id}", s.playlistH.Update)
	mux.HandleFunc("DELETE /api/playlists/{id}", s.playlistH.Delete)
	mux.HandleFunc("GET /api/playlists/{id}/tracks", s.playlistH.Entries)
	mux.HandleFunc("POST /api/playlists/{id}/tracks/{track_id}", s.playlistH.AppendTrack)
	mux.HandleFunc("DELETE /api/playlists/{id}/tracks/{track_id}", s.playlistH.RemoveTrack)
	mux.HandleFunc("PUT /api/playlists/{id}/order", s.playlistH.Reorder)

	// Social edges
	mux.HandleFunc("POST /api/users/{id}/follow", s.socialH.FollowUser)
	mux.HandleFunc("POST /api/tracks/{id}/like", s.socialH.LikeTrack)
	mux.HandleFunc("POST /api/albums/{id}/like", s.socialH.LikeAlbum)
	mux.HandleFunc("POST /api/playlists/{id}/like", s.socialH.LikePlaylist)
	mux.HandleFunc("POST /api/playlists/{id}/follow", s.socialH.FollowPlaylist)
	mux.HandleFunc("GET /api/me/likes/history", s.socialH.LikeHistory)

	// Subscriptions
	mux.HandleFunc("POST /api/subscriptions", s.subscriptionH.Activate)
	mux.HandleFunc("POST /api/subscriptions/cancel", s.subscriptionH.Cancel)
	mux.HandleFunc("POST /api/subscriptions/reactivate", s.subscriptionH.Reactivate)
	mux.HandleFunc("GET /api/subscriptions/current", s.subscriptionH.Current)
	mux.HandleFunc("GET /api/subscriptions/transactions", s.subscriptionH.Transactions)

	// Catalog mutations are artist-only; reads are open to any signed-in user.
	mux.Handle("POST /api/albums", middleware.RequireArtist(http.HandlerFunc(s.catalogH.CreateAlbum)))
	mux.HandleFunc("GET /api/albums", s.catalogH.MyAlbums)
	mux.HandleFunc("GET /api/albums/{id}", s.catalogH.GetAlbum)
	mux.HandleFunc("GET /api/albums/{id}/tracks", s.catalogH.AlbumTracks)
	mux.Handle("DELETE /api/albums/{id}", middleware.RequireArtist(http.HandlerFunc(s.catalogH.DeleteAlbum)))
	mux.Handle("POST /api/tracks", middleware.RequireArtist(http.HandlerFunc(s.catalogH.CreateTrack)))
	mux.HandleFunc("GET /api/tracks/{id}", s.catalogH.GetTrack)
	mux.Handle("DELETE /api/tracks/{id}", middleware.RequireArtist(http.HandlerFunc(s.catalogH.DeleteTrack)))
	mux.Handle("POST /api/tracks/{id}/file", middleware.RequireArtist(http.HandlerFunc(s.catalogH.UploadTrackFile)))

	// Listening
	mux.HandleFunc("POST /api/tracks/{id}/listen", s.catalogH.RecordListen)
	mux.HandleFunc("GET /api/me/listens", s.catalogH.ListenHistory)

	// Admin
	mux.Handle("POST /api/admin/snapshots", middleware.RequireAdmin(http.HandlerFunc(s.snapshotH.Run)))
	mux.Handle("GET /api/admin/snapshots", middleware.RequireAdmin(http.HandlerFunc(s.snapshotH.List)))
}
