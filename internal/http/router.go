package httpapi

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"qrpos-order-services/internal/config"
	"qrpos-order-services/internal/http/handlers"
	"qrpos-order-services/internal/middleware"
	"qrpos-order-services/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

func NewRouter(logger *zap.Logger, cfg config.Config, h *handlers.Handler, wsServer *ws.Server) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(requestLogger(logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Telemetry(logger))

	if cfg.Env == "development" || len(cfg.CorsAllowedOrigins) > 0 {
		options := cors.Options{
			AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders: []string{
				"Accept",
				"Authorization",
				"Content-Type",
				"X-Requested-With",
				"X-Request-Id",
				"Cache-Control",
			},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}

		if cfg.Env == "development" {
			options.AllowOriginFunc = func(_ *http.Request, origin string) bool {
				return true
			}
		} else {
			options.AllowedOrigins = cfg.CorsAllowedOrigins
		}

		r.Use(cors.Handler(options))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Use(setResponseHeader("Cache-Control", "no-store"))
		r.Post("/orders", h.PublicOrderCreate)
		r.Get("/orders/{orderCode}", h.PublicOrderDetail)
		r.Post("/orders/{orderCode}/payment-submitted", h.PublicOrderPaymentSubmitted)
		r.Post("/orders/{orderCode}/payment-proof", h.PublicOrderUploadProof)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.StaffAuth(cfg.JWTSecret))

		r.Route("/api/pos", func(r chi.Router) {
			r.Post("/orders", h.POSOrderCreate)
			r.Get("/orders", h.POSOrderList)
			r.Get("/orders/{orderId}", h.POSOrderDetail)
			r.Patch("/orders/{orderId}/status", h.POSOrderStatus)
			r.Get("/orders/{orderId}/receipt.pdf", h.POSOrderReceiptPDF)
			r.Get("/tables/{tableId}/qr.png", h.POSTableQR)
		})

		r.Route("/api/payments", func(r chi.Router) {
			r.Post("/{paymentId}/confirm", h.PaymentConfirm)
			r.Post("/confirm-by-order/{orderId}", h.PaymentConfirmByOrder)
			r.Post("/{paymentId}/refund", h.PaymentRefund)
		})

		r.Route("/api/kds", func(r chi.Router) {
			r.Get("/orders", h.KDSBoard)
			r.Patch("/orders/{orderId}/status", h.KDSOrderStatus)
		})
	})

	if wsServer != nil {
		r.Get("/ws/outlets/{outletId}", wsServer.OutletWS)
		r.Get("/ws/public/orders/{orderCode}", wsServer.OrderWS)
	}

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger emits a debug line per request; Telemetry carries the
// production access log.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("origin", r.Header.Get("Origin")),
			)
		})
	}
}

func setResponseHeader(name string, value string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(name, value)
			next.ServeHTTP(w, r)
		})
	}
}
