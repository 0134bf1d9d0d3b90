// Package resource composes the request pipeline and the query cache into
// per-resource list/create/update/delete operations that return tagged
// results for the views to render.
package resource

import (
	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/client"
	"grimm.is/rampart/internal/i18n"
	"grimm.is/rampart/internal/validation"
)

// Entity is a server-managed resource. An empty id means not yet created.
type Entity interface {
	Searchable
	GetID() string
}

// Kind describes one resource type.
type Kind[T Entity] struct {
	Name     string // cache resource name and metrics label
	Path     string // collection path
	Label    string // i18n key of the display name
	Validate func(T) validation.FieldErrors
}

// Resource kinds.
var (
	Sites = Kind[api.Site]{
		Name:     "sites",
		Path:     client.PathSites,
		Label:    i18n.ResourceSite,
		Validate: validation.Site,
	}
	Rules = Kind[api.Rule]{
		Name:     "rules",
		Path:     client.PathRules,
		Label:    i18n.ResourceRule,
		Validate: validation.Rule,
	}
	Certificates = Kind[api.Certificate]{
		Name:     "certificates",
		Path:     client.PathCertificates,
		Label:    i18n.ResourceCertificate,
		Validate: validation.Certificate,
	}
)
