package tools

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/pkg/utils"
)

var (
	ErrNoData             = errors.New("no data")
	ErrUnresolvedLocation = errors.New("location could not be resolved")
	ErrMissingParam       = errors.New("missing parameter")
)

// Adapter wraps one external data source. Fetch never returns an error and
// never panics: failures come back as a ToolResult with StatusFailed.
type Adapter interface {
	Kind() domain.ToolKind
	Fetch(ctx context.Context, p Params) domain.ToolResult
}

// Params are the inputs of one tool call.
type Params struct {
	Location  domain.Location
	Commodity string
	// DayOffset is the first forecast day relative to today. Days is the
	// forecast horizon starting there.
	DayOffset int
	Days      int
	// Relaxed enables wider fallback tiers on the moderator's retry.
	Relaxed bool
}

// Normalized returns the fields that identify the call, lower-cased and with
// coordinates rounded to roughly a kilometre.
func (p Params) Normalized() map[string]string {
	m := map[string]string{
		"district":  strings.ToLower(strings.TrimSpace(p.Location.District)),
		"state":     strings.ToLower(strings.TrimSpace(p.Location.State)),
		"commodity": strings.ToLower(strings.TrimSpace(p.Commodity)),
	}
	if p.Location.HasCoords {
		m["lat"] = strconv.FormatFloat(p.Location.Lat, 'f', 2, 64)
		m["lon"] = strconv.FormatFloat(p.Location.Lon, 'f', 2, 64)
	}
	if p.DayOffset != 0 {
		m["day_offset"] = strconv.Itoa(p.DayOffset)
	}
	if p.Days != 0 {
		m["days"] = strconv.Itoa(p.Days)
	}
	if p.Relaxed {
		m["relaxed"] = "1"
	}
	return m
}

func (p Params) CacheKey(kind domain.ToolKind) string {
	return utils.ParamsKey(string(kind), p.Normalized())
}

// Registry maps tool kinds to their adapters.
type Registry struct {
	adapters map[domain.ToolKind]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.ToolKind]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.adapters[a.Kind()] = a
}

func (r *Registry) Get(kind domain.ToolKind) (Adapter, bool) {
	a, ok := r.adapters[kind]
	return a, ok
}

func (r *Registry) Kinds() []domain.ToolKind {
	var out []domain.ToolKind
	for _, k := range domain.ToolKinds {
		if _, ok := r.adapters[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
