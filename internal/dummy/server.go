package dummy

import (
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const topLimit = 10

type ServerConfig struct {
	Port int
	Options
}

// Options shape the stub's behaviour.
type Options struct {
	// Latency is added to every response, plus up to Jitter on top.
	Latency time.Duration
	Jitter  time.Duration

	// FailRatio is the share of requests answered with a 500.
	FailRatio float64

	// CatalogSize and Seed drive the generated catalog behind /products/top.
	CatalogSize int
	Seed        int64

	Log logrus.FieldLogger
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type server struct {
	opts    Options
	catalog *Catalog

	mu  sync.Mutex
	rnd *rand.Rand
}

// Handler builds the gin engine serving the catalog routes.
func Handler(opts Options) http.Handler {
	if opts.CatalogSize < len(fixedProducts) {
		opts.CatalogSize = 50
	}
	if opts.Seed == 0 {
		opts.Seed = 1
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	if opts.Log != nil {
		r.Use(requestLogger(opts.Log))
	}

	s := &server{
		opts:    opts,
		catalog: NewCatalog(opts.CatalogSize, opts.Seed),
		rnd:     rand.New(rand.NewSource(opts.Seed)),
	}
	r.Use(s.inject)

	r.GET("/products", s.list)
	r.GET("/products/top", s.top)
	r.GET("/products/:id", s.get)
	return r
}

// Start binds cfg.Port and serves the stub in the background. Port 0 picks a
// free port; the bound address is in the returned server's Addr.
func Start(cfg ServerConfig) (*http.Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, errors.Wrapf(err, "listen on port %d", cfg.Port)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	fmt.Printf("👻 Dummy catalog running on http://localhost:%d\n", port)
	fmt.Println("   Endpoints: /products, /products/:id, /products/top?sortType=VIEW_COUNT|SOLD_COUNT")

	server := &http.Server{
		Addr:    ln.Addr().String(),
		Handler: Handler(cfg.Options),
	}

	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Server failed: %v\n", err)
		}
	}()
	return server, nil
}

func (s *server) list(c *gin.Context) {
	c.JSON(http.StatusOK, s.catalog.Fixed())
}

func (s *server) get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Code: "INVALID_PRODUCT_ID", Message: "product id must be a number"})
		return
	}
	p, ok := s.catalog.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, errorBody{Code: "PRODUCT_NOT_FOUND", Message: fmt.Sprintf("product %d not found", id)})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *server) top(c *gin.Context) {
	sortType := SortType(c.Query("sortType"))
	products, err := s.catalog.Top(sortType, topLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Code: "INVALID_SORT_TYPE", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, products)
}

// inject applies the configured latency and failure ratio.
func (s *server) inject(c *gin.Context) {
	delay, fail := s.draw()
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-c.Request.Context().Done():
			t.Stop()
			c.Abort()
			return
		case <-t.C:
		}
	}
	if fail {
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Code: "INTERNAL_ERROR", Message: "injected failure"})
		return
	}
	c.Next()
}

func (s *server) draw() (time.Duration, bool) {
	if s.opts.Latency <= 0 && s.opts.Jitter <= 0 && s.opts.FailRatio <= 0 {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delay := s.opts.Latency
	if s.opts.Jitter > 0 {
		delay += time.Duration(s.rnd.Int63n(int64(s.opts.Jitter)))
	}
	return delay, s.opts.FailRatio > 0 && s.rnd.Float64() < s.opts.FailRatio
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.RequestURI(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
			"vu":      c.GetHeader("X-VU-ID"),
		}).Debug("served")
	}
}
