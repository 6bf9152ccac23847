package record

import "time"

// SystemMetadata is the system-column slice of a record's response
// metadata, extracted out of Modified rather than duplicated storage.
type SystemMetadata struct {
	CreatedAt  *time.Time
	UpdatedAt  *time.Time
	TrashedAt  *time.Time
	DeletedAt  *time.Time
	AccessRead []string
	AccessEdit []string
	AccessFull []string
	AccessDeny []string
}

// PermissionMetadata summarizes what the acting identity may do with the
// record. None of the built-in observers populates it.
type PermissionMetadata struct {
	CanRead              bool
	CanEdit              bool
	CanDelete            bool
	CanShare             bool
	EffectiveAccessLevel string
}

// RelationshipMetadata carries related-record summaries an enrichment
// observer chooses to attach; both maps are keyed by relationship name.
type RelationshipMetadata struct {
	RelatedCounts map[string]int
	RelatedIDs    map[string][]string
}

// ProcessingMetadata records how the pipeline itself handled the record.
type ProcessingMetadata struct {
	EnrichedBy     []string
	ProcessingTime time.Duration
	CacheHit       bool
	QueryStats     map[string]any
}

// ResponseMetadata is the full response-shaping structure a caller may
// request alongside a record (§3.1 supplement to spec.md).
type ResponseMetadata struct {
	System        SystemMetadata
	Computed      map[string]any
	Permissions   PermissionMetadata
	Relationships RelationshipMetadata
	Processing    ProcessingMetadata
}

// ExtractSystemMetadata reads the system columns out of Modified and
// populates Response.System. It does not remove them from Modified.
func (r *StatefulRecord) ExtractSystemMetadata() {
	sys := SystemMetadata{}
	sys.CreatedAt = asTime(r.Modified["created_at"])
	sys.UpdatedAt = asTime(r.Modified["updated_at"])
	sys.TrashedAt = asTime(r.Modified["trashed_at"])
	sys.DeletedAt = asTime(r.Modified["deleted_at"])
	sys.AccessRead = asStringSlice(r.Modified["access_read"])
	sys.AccessEdit = asStringSlice(r.Modified["access_edit"])
	sys.AccessFull = asStringSlice(r.Modified["access_full"])
	sys.AccessDeny = asStringSlice(r.Modified["access_deny"])
	r.Response.System = sys
}

func asTime(v any) *time.Time {
	switch t := v.(type) {
	case time.Time:
		return &t
	case *time.Time:
		return t
	default:
		return nil
	}
}

func asStringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// MetadataOptions selects which parts of a ResponseMetadata a caller
// wants echoed back: a set of top-level categories, plus dotted-path
// fields for finer selection (e.g. "processing.cache_hit").
type MetadataOptions struct {
	Categories map[string]bool
	Fields     []string
}

// wantsCategory reports whether opts selects a whole category. An empty
// Categories set with no Fields means "nothing"; an empty Categories set
// with Fields set means "only the named dotted paths".
func (opts MetadataOptions) wantsCategory(name string) bool {
	if opts.Categories == nil {
		return false
	}
	return opts.Categories[name]
}

// Select trims a ResponseMetadata down to what opts asked for, returning
// a plain map suitable for JSON encoding. Whole categories requested via
// Categories are included verbatim; individual dotted-path Fields are
// resolved on top of (or instead of) whole categories.
func (opts MetadataOptions) Select(rm ResponseMetadata) map[string]any {
	full := map[string]any{
		"system": map[string]any{
			"created_at":  rm.System.CreatedAt,
			"updated_at":  rm.System.UpdatedAt,
			"trashed_at":  rm.System.TrashedAt,
			"deleted_at":  rm.System.DeletedAt,
			"access_read": rm.System.AccessRead,
			"access_edit": rm.System.AccessEdit,
			"access_full": rm.System.AccessFull,
			"access_deny": rm.System.AccessDeny,
		},
		"computed": rm.Computed,
		"permissions": map[string]any{
			"can_read":               rm.Permissions.CanRead,
			"can_edit":               rm.Permissions.CanEdit,
			"can_delete":             rm.Permissions.CanDelete,
			"can_share":              rm.Permissions.CanShare,
			"effective_access_level": rm.Permissions.EffectiveAccessLevel,
		},
		"relationships": map[string]any{
			"related_counts": rm.Relationships.RelatedCounts,
			"related_ids":    rm.Relationships.RelatedIDs,
		},
		"processing": map[string]any{
			"enriched_by":     rm.Processing.EnrichedBy,
			"processing_time": rm.Processing.ProcessingTime,
			"cache_hit":       rm.Processing.CacheHit,
			"query_stats":     rm.Processing.QueryStats,
		},
	}

	out := make(map[string]any)
	for category, value := range full {
		if opts.wantsCategory(category) {
			out[category] = value
		}
	}
	for _, path := range opts.Fields {
		category, field, ok := splitDottedPath(path)
		if !ok {
			continue
		}
		section, ok := full[category].(map[string]any)
		if !ok {
			continue
		}
		v, ok := section[field]
		if !ok {
			continue
		}
		dest, ok := out[category].(map[string]any)
		if !ok {
			dest = make(map[string]any)
			out[category] = dest
		}
		dest[field] = v
	}
	return out
}

func splitDottedPath(path string) (category, field string, ok bool) {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			return path[:i], path[i+1:], true
		}
	}
	return "", "", false
}
