package repository

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dealerhub/platform/shared/apperrors"
	"github.com/dealerhub/platform/shared/models"
)

// whereClause accumulates SQL predicates with numbered placeholders.
type whereClause struct {
	conds []string
	args  []any
}

// add appends a predicate. tmpl refers to the new placeholder as %[1]s and
// may use it more than once.
func (w *whereClause) add(tmpl string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(tmpl, "$"+strconv.Itoa(len(w.args))))
}

func (w *whereClause) addRaw(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *whereClause) placeholder(arg any) string {
	w.args = append(w.args, arg)
	return "$" + strconv.Itoa(len(w.args))
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// FilterRule binds a query parameter to the predicate it applies. Apply
// returns a user-facing message when the raw value is malformed.
type FilterRule struct {
	Param string
	Apply func(w *whereClause, raw string) error
}

// FilterSpec is applied in slice order; parameters absent from the request
// are skipped.
type FilterSpec []FilterRule

func (s FilterSpec) apply(w *whereClause, params url.Values) *apperrors.ValidationError {
	verr := apperrors.NewValidationError()
	for _, rule := range s {
		raw := strings.TrimSpace(params.Get(rule.Param))
		if raw == "" {
			continue
		}
		if err := rule.Apply(w, raw); err != nil {
			verr.Add(rule.Param, err.Error())
		}
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// VehicleFilters is the recognised filter set for the vehicle listing.
var VehicleFilters = FilterSpec{
	{Param: "brand_id", Apply: intEquals("brand_id")},
	{Param: "model_id", Apply: intEquals("model_id")},
	{Param: "status", Apply: oneOf("status", models.StatusAvailable, models.StatusReserved, models.StatusSold)},
	{Param: "min_price", Apply: numberCompare("price", ">=")},
	{Param: "max_price", Apply: numberCompare("price", "<=")},
	{Param: "min_year", Apply: intCompare("year", ">=")},
	{Param: "max_year", Apply: intCompare("year", "<=")},
	{Param: "min_mileage", Apply: intCompare("mileage", ">=")},
	{Param: "max_mileage", Apply: intCompare("mileage", "<=")},
	{Param: "fuel_type", Apply: textEquals("fuel_type")},
	{Param: "transmission", Apply: textEquals("transmission")},
	{Param: "available", Apply: availableOnly},
	{Param: "search", Apply: containsAny("vin", "registration_number")},
}

func intEquals(column string) func(*whereClause, string) error {
	return intCompare(column, "=")
}

func intCompare(column, op string) func(*whereClause, string) error {
	return func(w *whereClause, raw string) error {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("The %s must be an integer.", column)
		}
		w.add(column+" "+op+" %[1]s", n)
		return nil
	}
}

func numberCompare(column, op string) func(*whereClause, string) error {
	return func(w *whereClause, raw string) error {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("The %s must be a number.", column)
		}
		w.add(column+" "+op+" %[1]s", f)
		return nil
	}
}

func oneOf(column string, allowed ...string) func(*whereClause, string) error {
	return func(w *whereClause, raw string) error {
		for _, a := range allowed {
			if raw == a {
				w.add(column+" = %[1]s", raw)
				return nil
			}
		}
		return fmt.Errorf("The selected %s is invalid.", column)
	}
}

func textEquals(column string) func(*whereClause, string) error {
	return func(w *whereClause, raw string) error {
		w.add("LOWER("+column+") = LOWER(%[1]s)", raw)
		return nil
	}
}

func availableOnly(w *whereClause, raw string) error {
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return errors.New("The available field must be true or false.")
	}
	if b {
		w.add("status = %[1]s", models.StatusAvailable)
	}
	return nil
}

func containsAny(columns ...string) func(*whereClause, string) error {
	return func(w *whereClause, raw string) error {
		parts := make([]string, len(columns))
		for i, c := range columns {
			parts[i] = c + ` ILIKE %[1]s ESCAPE '\'`
		}
		w.add("("+strings.Join(parts, " OR ")+")", "%"+escapeLike(raw)+"%")
		return nil
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ListOptions holds paging, sorting and soft-delete scope.
type ListOptions struct {
	Page          int
	PerPage       int
	SortField     string
	SortDirection string
	WithTrashed   bool
}

const (
	DefaultPerPage = 15
	MaxPerPage     = 100
)

var sortableVehicleFields = map[string]bool{
	"created_at": true,
	"price":      true,
	"year":       true,
	"mileage":    true,
}

func ParseListOptions(params url.Values) (ListOptions, *apperrors.ValidationError) {
	opts := ListOptions{Page: 1, PerPage: DefaultPerPage, SortField: "created_at", SortDirection: "desc"}
	verr := apperrors.NewValidationError()

	if raw := params.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			verr.Add("page", "The page must be at least 1.")
		} else {
			opts.Page = n
		}
	}
	if raw := params.Get("per_page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxPerPage {
			verr.Add("per_page", fmt.Sprintf("The per_page must be between 1 and %d.", MaxPerPage))
		} else {
			opts.PerPage = n
		}
	}
	if raw := params.Get("sort_field"); raw != "" {
		if !sortableVehicleFields[raw] {
			verr.Add("sort_field", "The selected sort_field is invalid.")
		} else {
			opts.SortField = raw
		}
	}
	if raw := strings.ToLower(params.Get("sort_direction")); raw != "" {
		if raw != "asc" && raw != "desc" {
			verr.Add("sort_direction", "The selected sort_direction is invalid.")
		} else {
			opts.SortDirection = raw
		}
	}
	if raw := params.Get("with_trashed"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			verr.Add("with_trashed", "The with_trashed field must be true or false.")
		}
		opts.WithTrashed = b
	}

	if verr.HasErrors() {
		return opts, verr
	}
	return opts, nil
}

// buildVehicleWhere scopes to live rows unless opts.WithTrashed, then
// applies the filter table.
func buildVehicleWhere(params url.Values, opts ListOptions) (*whereClause, *apperrors.ValidationError) {
	w := &whereClause{}
	if !opts.WithTrashed {
		w.addRaw("deleted_at IS NULL")
	}
	if verr := VehicleFilters.apply(w, params); verr != nil {
		return nil, verr
	}
	return w, nil
}
