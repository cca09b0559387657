package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openmined/padsync/internal/server/handlers/api"
	"github.com/openmined/padsync/internal/server/handlers/git"
	"github.com/openmined/padsync/internal/server/handlers/notes"
	"github.com/openmined/padsync/internal/server/handlers/status"
	"github.com/openmined/padsync/internal/server/middlewares"
	"github.com/openmined/padsync/internal/version"
)

const defaultRateLimit = "100-S"

var errVersioningDisabled = errors.New("versioning is disabled")

type RouteConfig struct {
	Token     string
	RateLimit string
}

func SetupRoutes(svc *Services, cfg RouteConfig) http.Handler {
	if cfg.RateLimit == "" {
		cfg.RateLimit = defaultRateLimit
	}

	r := gin.New()

	notesH := notes.New(svc.Store, svc.Hub)
	var statusH *status.StatusHandler
	if svc.Versioning != nil {
		statusH = status.New(svc.Hub, svc.Versioning, svc.Store.Root())
	} else {
		statusH = status.New(svc.Hub, nil, svc.Store.Root())
	}

	r.Use(middlewares.Logger())
	r.Use(gin.Recovery())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORS())
	r.Use(middlewares.GZIP())

	r.GET("/", IndexHandler)
	r.GET("/health", HealthHandler)

	auth := middlewares.TokenAuth(middlewares.TokenAuthConfig{Token: cfg.Token})

	r.GET("/ws", auth, svc.Hub.WebsocketHandler)

	v1 := r.Group("/api")
	v1.Use(middlewares.RateLimiter(cfg.RateLimit))
	v1.Use(auth)
	{
		v1.GET("/status", statusH.Status)
		v1.GET("/locks", statusH.Locks)
		v1.GET("/sessions", statusH.Sessions)

		// notes
		v1.GET("/notes", notesH.List)
		v1.POST("/notes/rename", notesH.Rename)
		v1.GET("/notes/*path", notesH.Get)
		v1.PUT("/notes/*path", notesH.Put)
		v1.DELETE("/notes/*path", notesH.Delete)

		// versioning
		if svc.Git != nil {
			gitH := git.New(svc.Git, svc.Versioning)
			v1.GET("/git/status", gitH.Status)
			v1.POST("/git/commit", gitH.Commit)
			v1.GET("/git/conflicts", gitH.Conflicts)
			v1.GET("/git/log", gitH.Log)
			v1.POST("/git/init", gitH.Init)
		} else {
			v1.Any("/git/*any", VersioningDisabledHandler)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.PureJSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.PureJSON(http.StatusMethodNotAllowed, gin.H{
			"error": "method not allowed",
		})
	})

	return r.Handler()
}

func IndexHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, version.DetailedWithApp())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.Version,
	})
}

func VersioningDisabledHandler(ctx *gin.Context) {
	api.AbortWithError(ctx, http.StatusServiceUnavailable, api.CodeGitDisabled, errVersioningDisabled)
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
