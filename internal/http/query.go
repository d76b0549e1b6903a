package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/example/eventflow/internal/application"
	"github.com/example/eventflow/internal/listview"
)

// reservedQueryKeys are list parameters that are not filters.
var reservedQueryKeys = map[string]bool{"sort": true, "order": true, "size": true}

// parseListQuery turns query parameters into list filters and a sort state.
// Unknown filter keys are passed through and rejected by the service.
func parseListQuery(r *http.Request) (application.ListQuery, error) {
	values := r.URL.Query()

	sort, err := listview.ParseSort(values.Get("sort"), values.Get("order"))
	if err != nil {
		return application.ListQuery{}, &application.ValidationError{FieldErrors: map[string]string{"sort": err.Error()}}
	}

	filters := listview.Filters{}
	for key, vals := range values {
		if reservedQueryKeys[key] || len(vals) == 0 {
			continue
		}
		filters[key] = strings.TrimSpace(vals[len(vals)-1])
	}
	return application.ListQuery{Filters: filters, Sort: sort}, nil
}

// intQuery reads an integer parameter, returning fallback when absent.
func intQuery(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &application.ValidationError{FieldErrors: map[string]string{key: "must be a whole number"}}
	}
	return v, nil
}

func principalFrom(r *http.Request) application.Principal {
	principal, _ := PrincipalFromContext(r.Context())
	return principal
}
