package servehttp

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const shutdownGracePeriod = 3 * time.Second

// StartHTTPServer serves the engine on SERVICE_ADDR (":8080" when unset)
// and blocks until SIGINT or SIGTERM, then drains in-flight requests.
func StartHTTPServer(engine *gin.Engine) {
	addr := os.Getenv("SERVICE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("listen on %s: %v", addr, err)
		}
	}()
	logrus.Infof("assetflow serving on %s", addr)

	quit := make(chan os.Signal, 1)
	// SIGKILL can not be caught, only plain kill and Ctrl-C are handled
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Infof("shutdown signal received, draining for up to %s", shutdownGracePeriod)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Fatalf("http server shutdown: %v", err)
	}
	logrus.Info("assetflow exited")
}
