package validators

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/dmcastano/evdex-backend/pkg/errors"
)

// ParseQueryInt reads an optional integer query parameter, enforcing the
// inclusive [min, max] range. A missing or blank parameter yields the
// default.
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("query parameter %q must be an integer", key)).
			WithDetails(map[string]any{"field": key})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("query parameter %q out of range", key)).
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}
