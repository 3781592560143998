package httpapi

import "net/http"

// Аутентификация — внешний коллаборатор: до сервиса запросы доходят уже
// авторизованными, идентичность передаётся доверенными заголовками.
const (
	headerUserID   = "X-User-Id"
	headerUserRole = "X-User-Role"

	// RoleStaff разрешает чужие заказы и смену статусов.
	RoleStaff = "staff"
)

type identity struct {
	UserID string
	Role   string
}

func callerIdentity(r *http.Request) identity {
	return identity{
		UserID: r.Header.Get(headerUserID),
		Role:   r.Header.Get(headerUserRole),
	}
}

// requireUser отклоняет запросы без идентичности до обработчика.
func requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerUserID) == "" {
			writeBadRequest(w, "X-User-Id header is required")
			return
		}
		next(w, r)
	}
}
