package products

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"SanitizedInput/pkg/kit"
)

// Sentinel bodies. Clients compare them byte for byte.
const (
	MarkerRejectedInput = "not_sanitized"
	MarkerRejectedID    = "not sanitized"
	MarkerNotFound      = "Not in database"
)

const basePath = "/v1/sanitized/input"

type Server struct {
	Store Store
	Log   *zap.Logger

	svc        *Service
	validate   *validator.Validate
	rejections *prometheus.CounterVec
}

type productReq struct {
	Name        *string  `json:"name" validate:"required"`
	Description *string  `json:"description" validate:"required"`
	Price       *float64 `json:"price" validate:"required"`
	Quantity    *int     `json:"quantity" validate:"required"`
}

func (p productReq) fields() Fields {
	return Fields{
		Name:        *p.Name,
		Description: *p.Description,
		Price:       *p.Price,
		Qty:         *p.Quantity,
	}
}

func (s *Server) Routes() http.Handler {
	if s.Log == nil {
		s.Log = zap.NewNop()
	}
	s.svc = NewService(s.Store)
	s.validate = newValidator()

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()

		if err := s.Store.Ping(ctx); err != nil {
			s.Log.Warn("readyz failed", zap.Error(err))
			kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Route(basePath, func(r chi.Router) {
		r.Post("/", s.create)
		r.Get("/", s.list)
		r.Get("/{id}", s.get)
		r.Put("/{id}", s.update)
		r.Delete("/{id}", s.delete)
	})

	return r
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	f, ok := s.decodeFields(w, r)
	if !ok {
		return
	}

	out, err := s.svc.Create(r.Context(), f)
	s.respond(w, r, "create", out, err)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.List(r.Context())
	s.respond(w, r, "list", out, err)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Get(r.Context(), idParam(r))
	s.respond(w, r, "get", out, err)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	f, ok := s.decodeFields(w, r)
	if !ok {
		return
	}

	out, err := s.svc.Update(r.Context(), idParam(r), f)
	s.respond(w, r, "update", out, err)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Delete(r.Context(), idParam(r))
	s.respond(w, r, "delete", out, err)
}

func (s *Server) decodeFields(w http.ResponseWriter, r *http.Request) (Fields, bool) {
	var req productReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", map[string]any{"cause": err.Error()})
		return Fields{}, false
	}

	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			kit.WriteError(w, r, http.StatusBadRequest, "invalid product", nil)
			return Fields{}, false
		}

		kit.WriteError(w, r, http.StatusBadRequest, "invalid product", validationDetails(verrs))
		return Fields{}, false
	}

	return req.fields(), true
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, op string, out Outcome, err error) {
	if err != nil {
		s.writeStoreError(w, r, op, err)
		return
	}

	if out.Rejected() {
		s.Log.Info("input rejected",
			zap.String("operation", op),
			zap.Stringer("outcome", out.Kind),
			zap.String("id", idParam(r)),
		)
		if s.rejections != nil {
			s.rejections.WithLabelValues(op).Inc()
		}
	}

	render(w, out)
}

// render maps an outcome to its body. Every outcome answers 200.
func render(w http.ResponseWriter, out Outcome) {
	switch out.Kind {
	case KindListed:
		kit.WriteJSON(w, http.StatusOK, out.Products)
	case KindRejectedInput:
		kit.WriteJSON(w, http.StatusOK, MarkerRejectedInput)
	case KindRejectedID:
		kit.WriteJSON(w, http.StatusOK, MarkerRejectedID)
	case KindNotFound:
		kit.WriteJSON(w, http.StatusOK, MarkerNotFound)
	default:
		kit.WriteJSON(w, http.StatusOK, out.Product)
	}
}

func validationDetails(verrs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = "failed on rule: " + fe.Tag()
	}
	return details
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verrs validator.ValidationErrors

	switch {
	case errors.As(err, &verrs):
		kit.WriteError(w, r, http.StatusBadRequest, "invalid product", validationDetails(verrs))
	case errors.Is(err, ErrNameTaken):
		kit.WriteError(w, r, http.StatusConflict, ErrNameTaken.Error(), nil)
	case isTimeoutErr(err):
		s.Log.Warn("store timeout", zap.String("operation", op), zap.Error(err))
		kit.WriteError(w, r, http.StatusGatewayTimeout, "timeout", nil)
	default:
		s.Log.Error("store failed", zap.String("operation", op), zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
	}
}

// idParam returns the decoded id. chi hands back the escaped form when the
// request carried a non-canonical RawPath.
func idParam(r *http.Request) string {
	id := chi.URLParam(r, "id")
	if r.URL.RawPath == "" {
		return id
	}
	if decoded, err := url.PathUnescape(id); err == nil {
		return decoded
	}
	return id
}

func isTimeoutErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// newValidator reports fields under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
