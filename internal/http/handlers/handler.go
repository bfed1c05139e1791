package handlers

import (
	"reflect"
	"strings"

	"qrpos-order-services/internal/config"
	"qrpos-order-services/internal/services"
	"qrpos-order-services/internal/storage"
	"qrpos-order-services/internal/store"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type Handler struct {
	Orders *services.OrderService
	Repo   store.Repository
	Proofs *storage.ProofStore
	Logger *zap.Logger
	Config config.Config

	validate *validator.Validate
}

func New(orders *services.OrderService, repo store.Repository, proofs *storage.ProofStore, logger *zap.Logger, cfg config.Config) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		Orders:   orders,
		Repo:     repo,
		Proofs:   proofs,
		Logger:   logger,
		Config:   cfg,
		validate: v,
	}
}
