package http

import (
	"errors"
	"mime"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Ping/internal/config"
	"github.com/dkeye/Ping/internal/storage"
)

// multipartOverhead is allowed on top of max_file_size for form framing.
const multipartOverhead = 1 << 20

type AuthRequest struct {
	Code string `json:"code"`
}

type handlers struct {
	cfg  *config.Config
	deps Deps
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) authCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"authenticated": h.deps.Auth.Verify(credential(c)),
		"required":      h.deps.Auth.Required(),
	})
}

func (h *handlers) issue(c *gin.Context) {
	if !h.deps.Auth.Required() {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	tok, err := h.deps.Auth.Issue(req.Code)
	if err != nil {
		log.Warn().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("wrong room code")
		c.JSON(http.StatusForbidden, gin.H{"error": "wrong code"})
		return
	}

	sess := sessions.Default(c)
	sess.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(h.cfg.CookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   c.Request.TLS != nil,
	})
	sess.Set(tokenKey, tok)
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *handlers) requireCredential(c *gin.Context) {
	if !h.deps.Auth.Verify(credential(c)) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	c.Next()
}

func (h *handlers) upload(c *gin.Context) {
	maxSize := h.deps.Files.MaxSize()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	if fh.Size > maxSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer f.Close()

	st, err := h.deps.Files.Save(fh.Filename, f)
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Msg("store upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store failed"})
		return
	}

	h.deps.Room.ShareFile(st.Filename, st.StoredName, st.Size)
	c.JSON(http.StatusOK, gin.H{"ok": true, "stored_name": st.StoredName})
}

func (h *handlers) download(c *gin.Context) {
	f, name, err := h.deps.Files.Open(c.Param("stored_name"))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Error().Err(err).Str("module", "adapters.http").Msg("open upload")
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(c.Writer, c.Request, name, fi.ModTime(), f)
}
