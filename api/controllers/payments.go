package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mbouombouo/studiostay-backend/api/responses"
	"github.com/mbouombouo/studiostay-backend/internal/reconciler"
	pkgerrors "github.com/mbouombouo/studiostay-backend/pkg/errors"
	"github.com/mbouombouo/studiostay-backend/pkg/logger"
)

// PaymentStatus answers the client's polling of an in-flight payment.
func PaymentStatus(svc reconciler.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		reference := chi.URLParam(r, "reference")
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required"))
			return
		}

		result, err := svc.GetPaymentStatus(r.Context(), reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
