// Package query turns an untrusted user search request into a validated,
// allow-listed Criteria the repository layer can render or evaluate.
//
// Column identifiers never come from request text: every filter and sort
// field is looked up in a fixed table, and only values travel as bind
// parameters.
package query

import (
	"strings"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
)

// SortAscend is the only sortOrder token that selects ascending order.
const SortAscend = "ascend"

// Field is an allow-listed user attribute.
type Field string

const (
	FieldID          Field = "id"
	FieldAccount     Field = "account"
	FieldDisplayName Field = "displayName"
	FieldProfile     Field = "profile"
	FieldRole        Field = "role"
	FieldCreatedAt   Field = "createdAt"
	FieldUpdatedAt   Field = "updatedAt"
)

var columns = map[Field]string{
	FieldID:          "id",
	FieldAccount:     "account",
	FieldDisplayName: "display_name",
	FieldProfile:     "profile",
	FieldRole:        "role",
	FieldCreatedAt:   "created_at",
	FieldUpdatedAt:   "updated_at",
}

// Column returns the SQL column for f.
func (f Field) Column() (string, bool) {
	c, ok := columns[f]
	return c, ok
}

// Kind selects how a predicate compares.
type Kind int

const (
	Equal Kind = iota
	Contains
)

// Predicate is one (field, kind, value) filter.
type Predicate struct {
	Field Field
	Kind  Kind
	Value any
}

// Sort is an ordering instruction.
type Sort struct {
	Field     Field
	Ascending bool
}

// Request is the search payload of the admin list endpoint. Pointer and empty
// string fields are optional.
type Request struct {
	ID          *int64 `json:"id"`
	Account     string `json:"account"`
	DisplayName string `json:"displayName"`
	Profile     string `json:"profile"`
	Role        string `json:"role"`
	Current     int    `json:"current"`
	PageSize    int    `json:"pageSize"`
	SortField   string `json:"sortField"`
	SortOrder   string `json:"sortOrder"`
}

// Criteria is built once per request. Its zero value matches everything.
type Criteria struct {
	predicates []Predicate
	sort       *Sort
	current    int
	pageSize   int
}

// Build validates req and produces its Criteria. Predicates combine with AND.
func Build(req *Request) (Criteria, error) {
	if req == nil {
		return Criteria{}, apperr.Validation("query request is required")
	}
	if req.Current < 0 || req.PageSize < 0 {
		return Criteria{}, apperr.Validation("current and pageSize must not be negative")
	}

	c := Criteria{current: req.Current, pageSize: req.PageSize}
	if req.ID != nil {
		c.predicates = append(c.predicates, Predicate{Field: FieldID, Kind: Equal, Value: *req.ID})
	}
	if req.Role != "" {
		role := req.Role
		if r, ok := entity.ParseRole(role); ok {
			role = r.String()
		}
		c.predicates = append(c.predicates, Predicate{Field: FieldRole, Kind: Equal, Value: role})
	}
	if req.DisplayName != "" {
		c.predicates = append(c.predicates, Predicate{Field: FieldDisplayName, Kind: Contains, Value: req.DisplayName})
	}
	if req.Account != "" {
		c.predicates = append(c.predicates, Predicate{Field: FieldAccount, Kind: Contains, Value: req.Account})
	}
	if req.Profile != "" {
		c.predicates = append(c.predicates, Predicate{Field: FieldProfile, Kind: Contains, Value: req.Profile})
	}

	// sortOrder is only consulted once a sort field is known.
	if req.SortField != "" {
		f := Field(req.SortField)
		if _, ok := f.Column(); !ok {
			return Criteria{}, apperr.Validation("unsupported sortField: " + req.SortField)
		}
		c.sort = &Sort{Field: f, Ascending: req.SortOrder == SortAscend}
	}
	return c, nil
}

// Predicates returns a copy of the filters.
func (c Criteria) Predicates() []Predicate {
	out := make([]Predicate, len(c.predicates))
	copy(out, c.predicates)
	return out
}

// Sort returns the sort instruction, if any.
func (c Criteria) Sort() (Sort, bool) {
	if c.sort == nil {
		return Sort{}, false
	}
	return *c.sort, true
}

// Current is the requested page number as sent by the caller.
func (c Criteria) Current() int { return c.current }

// PageSize is the requested page size as sent by the caller.
func (c Criteria) PageSize() int { return c.pageSize }

// Where renders the predicates as a boolean SQL expression with `?`
// placeholders. An empty criteria renders "TRUE".
func (c Criteria) Where() (string, []any) {
	if len(c.predicates) == 0 {
		return "TRUE", nil
	}
	parts := make([]string, 0, len(c.predicates))
	args := make([]any, 0, len(c.predicates))
	for _, p := range c.predicates {
		col, ok := p.Field.Column()
		if !ok {
			continue
		}
		switch p.Kind {
		case Contains:
			parts = append(parts, col+` LIKE ? ESCAPE '\'`)
			args = append(args, "%"+escapeLike(toString(p.Value))+"%")
		default:
			parts = append(parts, col+" = ?")
			args = append(args, p.Value)
		}
	}
	if len(parts) == 0 {
		return "TRUE", nil
	}
	return strings.Join(parts, " AND "), args
}

// OrderBy renders the ORDER BY clause, or "" when no sort was requested.
func (c Criteria) OrderBy() string {
	s, ok := c.Sort()
	if !ok {
		return ""
	}
	col, ok := s.Field.Column()
	if !ok {
		return ""
	}
	dir := "DESC"
	if s.Ascending {
		dir = "ASC"
	}
	return " ORDER BY " + col + " " + dir
}

// Match evaluates the predicates against u in memory.
func (c Criteria) Match(u entity.User) bool {
	for _, p := range c.predicates {
		got := fieldValue(u, p.Field)
		switch p.Kind {
		case Contains:
			if !strings.Contains(toString(got), toString(p.Value)) {
				return false
			}
		default:
			if id, ok := p.Value.(int64); ok {
				if u.ID != id {
					return false
				}
				continue
			}
			if toString(got) != toString(p.Value) {
				return false
			}
		}
	}
	return true
}

// Less orders a before b according to the sort instruction. Without one the
// order is by id.
func (c Criteria) Less(a, b entity.User) bool {
	s, ok := c.Sort()
	if !ok {
		return a.ID < b.ID
	}
	var less, greater bool
	switch s.Field {
	case FieldID:
		less, greater = a.ID < b.ID, a.ID > b.ID
	case FieldCreatedAt:
		less, greater = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.After(b.CreatedAt)
	case FieldUpdatedAt:
		less, greater = a.UpdatedAt.Before(b.UpdatedAt), a.UpdatedAt.After(b.UpdatedAt)
	default:
		av, bv := toString(fieldValue(a, s.Field)), toString(fieldValue(b, s.Field))
		less, greater = av < bv, av > bv
	}
	if s.Ascending {
		return less
	}
	return greater
}

func fieldValue(u entity.User, f Field) any {
	switch f {
	case FieldID:
		return u.ID
	case FieldAccount:
		return u.Account
	case FieldDisplayName:
		return u.DisplayName
	case FieldProfile:
		return u.Profile
	case FieldRole:
		return u.Role
	default:
		return ""
	}
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
