package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"qrpos-order-services/internal/middleware"
	"qrpos-order-services/internal/order"
	"qrpos-order-services/internal/store"
	"qrpos-order-services/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const maxJSONBody = 1 << 20

var errMissingParam = errors.New("missing param")

func readPathString(r *http.Request, key string) string {
	return strings.TrimSpace(chi.URLParam(r, key))
}

func readPathInt64(r *http.Request, key string) (int64, error) {
	value := readPathString(r, key)
	if value == "" {
		return 0, errMissingParam
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return id, nil
}

func readQueryInt64(r *http.Request, key string) (int64, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return 0, errMissingParam
	}
	return strconv.ParseInt(value, 10, 64)
}

// decodeBody reads a JSON body into dst and runs its validate tags.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return order.Validation("Request body is required")
		}
		return order.Validation("Invalid request body")
	}
	return h.validate.Struct(dst)
}

func repoErr(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return order.NotFound(what)
	}
	return err
}

func staffContext(w http.ResponseWriter, r *http.Request) (*middleware.AuthContext, bool) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok || ac.OutletID <= 0 {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization token required")
		return nil, false
	}
	return ac, true
}

var itemIndexPattern = regexp.MustCompile(`\.items\[(\d+)\]`)

// writeError maps service errors to the JSON envelope. Customers get generic
// text for conflicts and failures; staff get the concrete reason.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, public bool) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		if m := itemIndexPattern.FindStringSubmatch(strings.ToLower(first.Namespace())); m != nil {
			index, _ := strconv.Atoi(m[1])
			response.ErrorWithDetails(w, http.StatusBadRequest, string(order.CodeInvalidOrderItem),
				fmt.Sprintf("Item %d: %s is invalid", index, first.Field()), map[string]any{"index": index})
			return
		}
		response.Error(w, http.StatusBadRequest, string(order.CodeValidation), validationMessage(verrs))
		return
	}

	if e, ok := order.AsError(err); ok {
		status := e.StatusCode()
		if public && e.Kind == order.KindConflict {
			response.Error(w, status, string(e.Code), "This order was updated by the restaurant. Please refresh and try again.")
			return
		}
		response.ErrorWithDetails(w, status, string(e.Code), e.Message, e.Details)
		return
	}

	h.Logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("requestId", r.Header.Get("X-Request-Id")),
		zap.Error(err),
	)
	message := "Failed to process request"
	if public {
		message = "Something went wrong. Please try again."
	}
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}

func validationMessage(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "max", "lte":
			parts = append(parts, fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param()))
		case "gt":
			parts = append(parts, fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param()))
		case "min", "gte":
			parts = append(parts, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fe.Field()+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}
