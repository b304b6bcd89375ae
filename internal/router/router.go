package router

import (
	"github.com/gin-gonic/gin"

	"github.com/trendlens/admin-api/internal/handler/prometheus"
	"github.com/trendlens/admin-api/internal/middleware"
)

// Handler is anything that mounts routes on a group.
type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Config struct {
	RateLimitRPS   float64
	RateLimitBurst int
	CORS           middleware.CORSConfig
}

// Router assembles the admin API surface: public health and login, and the
// authenticated admin group.
type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	authH   Handler
	healthH Handler
	adminH  []Handler
	promH   *prometheus.Handler
}

func NewRouter(auth *middleware.AuthMiddleware, authH, healthH Handler, promH *prometheus.Handler, config Config, adminH ...Handler) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		promH.Middleware(),
		middleware.CORS(config.CORS),
	)

	if config.RateLimitRPS > 0 {
		limiter := middleware.NewRateLimiter(config.RateLimitRPS, config.RateLimitBurst)
		engine.Use(limiter.RateLimit())
	}

	return &Router{
		engine:  engine,
		auth:    auth,
		authH:   authH,
		healthH: healthH,
		adminH:  adminH,
		promH:   promH,
	}
}

func (r *Router) Setup() {
	api := r.engine.Group("/api")

	r.healthH.RegisterRoutes(api)
	api.GET("/metrics", r.promH.Handler())

	r.authH.RegisterRoutes(api)

	admin := api.Group("/admin")
	admin.Use(r.auth.Authenticate())
	for _, h := range r.adminH {
		h.RegisterRoutes(admin)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
