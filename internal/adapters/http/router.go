package http

import (
	"context"
	"net/http"
	"path"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Ping/internal/adapters/signal"
	"github.com/dkeye/Ping/internal/app"
	"github.com/dkeye/Ping/internal/auth"
	"github.com/dkeye/Ping/internal/config"
	"github.com/dkeye/Ping/internal/storage"
)

const (
	sessionCookie = "session"
	tokenKey      = "token"
)

type Deps struct {
	Secret auth.Secret
	Auth   *auth.Authenticator
	Room   *app.Room
	Files  *storage.FileStore
	Signal *signal.SignalWSController
}

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	// Cookies are signed with the per-process secret, so a restart logs
	// everyone out together with the credential itself.
	store := cookie.NewStore(d.Secret.Bytes())
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.CookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	r.Use(sessions.Sessions(sessionCookie, store))
	r.Use(RequestIDMiddleware())

	h := &handlers{cfg: cfg, deps: d}

	r.GET("/health", h.health)
	r.GET("/auth/check", h.authCheck)
	r.POST("/auth", h.issue)

	r.GET("/ws", func(c *gin.Context) {
		d.Signal.HandleSignal(ctx, c, credential(c))
	})

	files := r.Group("/", h.requireCredential)
	files.POST("/upload", h.upload)
	files.GET("/files/:stored_name", h.download)

	r.Static("/static", cfg.StaticPath)
	r.NoRoute(staticFallback(cfg.StaticPath))

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}

// staticFallback serves the frontend at the root for any unmatched GET or
// HEAD, with index.html for directories.
func staticFallback(root string) gin.HandlerFunc {
	fs := gin.Dir(root, false)
	files := http.FileServer(fs)
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		f, err := fs.Open(path.Clean("/" + c.Request.URL.Path))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		_ = f.Close()
		files.ServeHTTP(c.Writer, c.Request)
	}
}

// credential returns the token stored in the session cookie, or "".
func credential(c *gin.Context) string {
	tok, _ := sessions.Default(c).Get(tokenKey).(string)
	return tok
}
