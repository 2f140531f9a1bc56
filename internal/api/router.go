package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/LJTian/NewsCurator/internal/models"
	"github.com/LJTian/NewsCurator/internal/pipeline"
	"github.com/LJTian/NewsCurator/internal/scoring"
	"github.com/LJTian/NewsCurator/internal/storage"
	"github.com/LJTian/NewsCurator/internal/workflow"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type Ingestor interface {
	RunIngestionCycle(ctx context.Context) (*pipeline.Result, error)
}

type Server struct {
	store    storage.ArticleStore
	workflow *workflow.Engine
	scoring  *scoring.Engine
	ingestor Ingestor
	log      zerolog.Logger
}

func NewServer(store storage.ArticleStore, wf *workflow.Engine, sc *scoring.Engine, ingestor Ingestor, log zerolog.Logger) *Server {
	return &Server{
		store:    store,
		workflow: wf,
		scoring:  sc,
		ingestor: ingestor,
		log:      log.With().Str("component", "api").Logger(),
	}
}

// Options 路由级别的可选项
type Options struct {
	// BasicAuthUser / BasicAuthPass 同时非空时启用 Basic Auth（/health 免认证）
	BasicAuthUser string
	BasicAuthPass string
}

// NewRouter 创建 gin 引擎并注册所有路由
func NewRouter(s *Server, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))
	if opts.BasicAuthUser != "" && opts.BasicAuthPass != "" {
		r.Use(basicAuthMiddleware(opts.BasicAuthUser, opts.BasicAuthPass))
	}
	s.RegisterRoutes(r)
	return r
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/ingest", s.ingest)

		articles := v1.Group("/articles")
		articles.GET("", s.listArticles)
		articles.GET("/:id", s.getArticle)
		articles.GET("/:id/headlines", s.headlines)
		articles.POST("/:id/select", s.selectArticle)
		articles.POST("/:id/edit", s.editArticle)
		articles.POST("/:id/draft", s.saveDraft)
		articles.POST("/:id/post", s.postArticle)
		articles.POST("/:id/autoscore", s.autoScore)
		articles.PUT("/:id/scores", s.manualScores)
		articles.PUT("/:id/title", s.setTitle)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listArticles(c *gin.Context) {
	status := models.Status(c.Query("status"))
	if status != "" && !status.Valid() {
		fail(c, http.StatusBadRequest, "invalid_status", "unknown status "+string(status))
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			fail(c, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	items, err := s.store.List(c.Request.Context(), storage.Filter{Status: status, Limit: limit})
	if err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, items)
}

func (s *Server) getArticle(c *gin.Context) {
	a, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, a)
}

func (s *Server) ingest(c *gin.Context) {
	res, err := s.ingestor.RunIngestionCycle(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, res)
}

func (s *Server) selectArticle(c *gin.Context) {
	a, err := s.workflow.Select(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, a)
}

func (s *Server) editArticle(c *gin.Context) {
	a, err := s.workflow.Edit(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, a)
}

type draftRequest struct {
	CustomTitle *string `json:"custom_title"`
	Body        *string `json:"body"`
}

func (s *Server) saveDraft(c *gin.Context) {
	var req draftRequest
	if !bindOptional(c, &req) {
		return
	}
	a, err := s.workflow.SaveDraft(c.Request.Context(), c.Param("id"), req.CustomTitle, req.Body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, a)
}

type postRequest struct {
	Channels []models.Channel `json:"channels"`
}

func (s *Server) postArticle(c *gin.Context) {
	var req postRequest
	if !bindOptional(c, &req) {
		return
	}
	report, err := s.workflow.Post(c.Request.Context(), c.Param("id"), req.Channels...)
	if err != nil {
		if errors.Is(err, models.ErrExternalService) && report != nil {
			c.JSON(http.StatusBadGateway, gin.H{
				"code":    "external_service_error",
				"message": err.Error(),
				"data":    report,
			})
			return
		}
		s.respondError(c, err)
		return
	}
	ok(c, report)
}

func (s *Server) autoScore(c *gin.Context) {
	a, err := s.scoring.AutoScore(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, a)
}

func (s *Server) manualScores(c *gin.Context) {
	var req scoring.ManualScores
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	a, err := s.scoring.ApplyManualScores(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, a)
}

type titleRequest struct {
	Title string `json:"title" binding:"required"`
}

func (s *Server) setTitle(c *gin.Context) {
	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	a, err := s.workflow.SetCustomTitle(c.Request.Context(), c.Param("id"), req.Title)
	if err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, a)
}

func (s *Server) headlines(c *gin.Context) {
	h, err := s.workflow.RemixHeadlines(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, h)
}

// respondError 将领域错误映射为 HTTP 状态码
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		fail(c, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, models.ErrInvalidTransition):
		fail(c, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, models.ErrInvalidScoreValue):
		fail(c, http.StatusBadRequest, "invalid_score_value", err.Error())
	case errors.Is(err, models.ErrNoChannels):
		fail(c, http.StatusBadRequest, "no_channels", err.Error())
	case errors.Is(err, models.ErrExternalService):
		fail(c, http.StatusBadGateway, "external_service_error", err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		fail(c, http.StatusServiceUnavailable, "timeout", err.Error())
	default:
		s.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": msg,
	})
}

// bindOptional 请求体可以为空
func bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		fail(c, http.StatusBadRequest, "invalid_body", err.Error())
		return false
	}
	return true
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		if status >= 500 {
			event = log.Error()
		} else if status >= 400 {
			event = log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	}
}

// basicAuthMiddleware 为整个站点增加一个简单的 Basic Auth 访问密码。
// /health 不做认证，便于健康检查。
func basicAuthMiddleware(user, pass string) gin.HandlerFunc {
	const realm = "Restricted"
	uBytes := []byte(user)
	pBytes := []byte(pass)

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), uBytes) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), pBytes) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="`+realm+`"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
