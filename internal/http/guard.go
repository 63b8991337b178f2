package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/Freeeeeet/student_portal/internal/model"
	"github.com/google/uuid"
)

type studentIDKey struct{}

// AccessGuard пропускает запрос к разделу только если студенту он доступен.
// Отказ ведёт на страницу ограниченного доступа, а не в ошибку
func AccessGuard(checker AccessChecker, category model.ContentCategory, redirectTo string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			studentID, err := uuid.Parse(strings.TrimSpace(r.Header.Get("X-Student-ID")))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "missing_student")
				return
			}

			if !checker.CheckAccess(r.Context(), studentID, category) {
				http.Redirect(w, r, redirectTo, http.StatusSeeOther)
				return
			}

			ctx := context.WithValue(r.Context(), studentIDKey{}, studentID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func studentIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(studentIDKey{}).(uuid.UUID)
	return id
}
