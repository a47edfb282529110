package web

import (
	"net/http"
	"time"

	ginprom "github.com/Depado/ginprom"
	helmet "github.com/danielkov/gin-helmet"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/expvar"
	size "github.com/gin-contrib/size"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	limiter "github.com/ulule/limiter"
	mgin "github.com/ulule/limiter/drivers/middleware/gin"
	memory "github.com/ulule/limiter/drivers/store/memory"
	secure "github.com/unrolled/secure"

	"github.com/smartcontractkit/chainlink-firehose/core/logger"
)

// RouterConfig configures NewRouter's middleware stack.
type RouterConfig struct {
	// AllowedOrigins, if non-empty, restricts CORS to these origins.
	// Empty means allow all.
	AllowedOrigins []string
	// MaxRequestBytes bounds request body size; 0 disables the limit.
	MaxRequestBytes int64
	// RateLimitPerMinute bounds requests per client IP per minute; 0
	// disables rate limiting.
	RateLimitPerMinute int64
}

// NewRouter builds the admin/observability HTTP surface. It never touches
// subscription state beyond reading registry.
func NewRouter(cfg RouterConfig, registry *SubscriptionRegistry, log logger.Logger) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ginRequestLogger(log))
	r.Use(helmet.Default())

	secureMW := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
	})
	r.Use(func(c *gin.Context) {
		if err := secureMW.Process(c.Writer, c.Request); err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Next()
	})

	r.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins(cfg.AllowedOrigins),
		AllowMethods:     []string{"GET"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	if cfg.MaxRequestBytes > 0 {
		r.Use(size.RequestSizeLimiter(cfg.MaxRequestBytes))
	}

	if cfg.RateLimitPerMinute > 0 {
		rate := limiter.Rate{Period: time.Minute, Limit: cfg.RateLimitPerMinute}
		r.Use(mgin.NewMiddleware(limiter.New(memory.NewStore(), rate)))
	}

	prom := ginprom.New(
		ginprom.Engine(r),
		ginprom.Subsystem("firehose_adapter"),
		ginprom.Path("/metrics/gin"),
	)
	r.Use(prom.Instrument())

	r.GET("/healthz", healthzHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/debug/vars", expvar.Handler())
	registerSubscriptionsResource(r, registry)

	return r, nil
}

func corsOrigins(allowed []string) []string {
	if len(allowed) == 0 {
		return []string{"*"}
	}
	return allowed
}

func healthzHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ginRequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugw("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
