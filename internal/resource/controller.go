package resource

import (
	"context"
	"errors"
	"net/url"

	"golang.org/x/text/message"

	"grimm.is/rampart/internal/cache"
	"grimm.is/rampart/internal/client"
	"grimm.is/rampart/internal/events"
	"grimm.is/rampart/internal/i18n"
	"grimm.is/rampart/internal/logging"
)

// Deps are shared by every controller.
type Deps struct {
	API     *client.HTTPClient
	Cache   *cache.Cache
	Printer *message.Printer
	Hub     *events.Hub
	Logger  *logging.Logger
}

func (d Deps) printer() *message.Printer {
	if d.Printer == nil {
		return i18n.NewPrinter(i18n.DefaultLang)
	}
	return d.Printer
}

// Controller runs CRUD for one resource kind.
type Controller[T Entity] struct {
	kind    Kind[T]
	api     *client.HTTPClient
	cache   *cache.Cache
	printer *message.Printer
	hub     *events.Hub
	logger  *logging.Logger
}

// NewController creates a controller for kind.
func NewController[T Entity](kind Kind[T], deps Deps) *Controller[T] {
	c := &Controller[T]{
		kind:    kind,
		api:     deps.API,
		cache:   deps.Cache,
		printer: deps.printer(),
		hub:     deps.Hub,
		logger:  deps.Logger,
	}
	if c.logger == nil {
		c.logger = logging.WithComponent("resource")
	}
	return c
}

// Kind returns the resource kind.
func (c *Controller[T]) Kind() Kind[T] {
	return c.kind
}

// ListKey is the cache key for a list with the given server-side filters.
func (c *Controller[T]) ListKey(filters url.Values) cache.Key {
	return cache.KeyFromValues(c.kind.Name, filters)
}

// FormKey identifies the create (empty id) or edit dialog for id.
func (c *Controller[T]) FormKey(id string) string {
	return c.kind.Name + ":" + id
}

// Submitting reports whether the form for id has a submission in flight.
func (c *Controller[T]) Submitting(id string) bool {
	return c.cache.Mutating(c.FormKey(id))
}

func (c *Controller[T]) label() string {
	return c.printer.Sprintf(c.kind.Label)
}

// List returns the collection, from cache when fresh.
func (c *Controller[T]) List(ctx context.Context, filters url.Values) Result[[]T] {
	items, err := cache.Query(ctx, c.cache, c.ListKey(filters), func(ctx context.Context) ([]T, error) {
		return client.List[T](ctx, c.api, c.kind.Path, filters)
	})
	if err != nil {
		return loadFailed[[]T](c.printer, c.label(), err)
	}
	return Result[[]T]{Value: items}
}

// Get returns one item, from cache when fresh.
func (c *Controller[T]) Get(ctx context.Context, id string) Result[T] {
	key := cache.NewKey(c.kind.Name, map[string]string{"id": id})
	item, err := cache.Query(ctx, c.cache, key, func(ctx context.Context) (T, error) {
		v, err := client.Get[T](ctx, c.api, c.kind.Path, id)
		if err != nil {
			var zero T
			return zero, err
		}
		return *v, nil
	})
	if err != nil {
		return loadFailed[T](c.printer, c.label(), err)
	}
	return Result[T]{Value: item}
}

func loadFailed[V any](p *message.Printer, label string, err error) Result[V] {
	e := client.AsError(err)
	r := Result[V]{Err: e}
	if e.Kind != client.KindAuth {
		r.Notice = p.Sprintf(i18n.NoticeLoadFailed, label, e.Message)
	}
	return r
}

// Save creates v when its id is empty and updates it otherwise.
func (c *Controller[T]) Save(ctx context.Context, v T) Result[T] {
	if v.GetID() == "" {
		return c.Create(ctx, v)
	}
	return c.Update(ctx, v)
}

// Create validates v, posts it and invalidates the kind's cached reads.
func (c *Controller[T]) Create(ctx context.Context, v T) Result[T] {
	return c.mutate(ctx, v, "", i18n.NoticeCreated, i18n.NoticeCreateFailed, events.EventResourceCreated,
		func(ctx context.Context) (*T, error) {
			return client.Create(ctx, c.api, c.kind.Path, v)
		})
}

// Update validates v, puts it and invalidates the kind's cached reads.
func (c *Controller[T]) Update(ctx context.Context, v T) Result[T] {
	return c.mutate(ctx, v, v.GetID(), i18n.NoticeUpdated, i18n.NoticeUpdateFailed, events.EventResourceUpdated,
		func(ctx context.Context) (*T, error) {
			return client.Update(ctx, c.api, c.kind.Path, v.GetID(), v)
		})
}

func (c *Controller[T]) mutate(ctx context.Context, v T, id, okKey, failKey string, ev events.EventType, send func(context.Context) (*T, error)) Result[T] {
	if fe := c.kind.Validate(v); len(fe) > 0 {
		fields := fe.Localize(c.printer)
		return Result[T]{
			Err: &client.Error{
				Kind:    client.KindValidation,
				Message: c.printer.Sprintf(i18n.ErrValidation),
				Fields:  fields,
				Err:     fe.Err(),
			},
			Fields:   fields,
			KeepOpen: true,
		}
	}

	form := c.FormKey(id)
	if !c.cache.BeginMutation(form) {
		return Result[T]{
			Err: &client.Error{
				Kind:    client.KindValidation,
				Message: c.printer.Sprintf(i18n.ErrSubmitting),
				Err:     ErrSubmitting,
			},
			KeepOpen: true,
		}
	}
	defer c.cache.EndMutation(form)

	out, err := send(ctx)
	if err != nil {
		e := client.AsError(err)
		r := Result[T]{Err: e, Fields: e.Fields, KeepOpen: e.Kind != client.KindAuth}
		if e.Kind != client.KindAuth {
			r.Notice = c.printer.Sprintf(failKey, c.label(), e.Message)
		}
		c.logger.Warn("write failed", "resource", c.kind.Name, "id", id, "kind", e.Kind.String(), "status", e.Status)
		return r
	}

	c.cache.Invalidate(c.kind.Name)
	c.hub.EmitResource(ev, c.kind.Name, (*out).GetID())
	return Result[T]{Value: *out, Notice: c.printer.Sprintf(okKey, c.label())}
}

// Delete removes id. Failures are reported as a notice only.
func (c *Controller[T]) Delete(ctx context.Context, id string) Result[struct{}] {
	if err := client.Delete(ctx, c.api, c.kind.Path, id); err != nil {
		e := client.AsError(err)
		r := Result[struct{}]{Err: e}
		if e.Kind != client.KindAuth {
			r.Notice = c.printer.Sprintf(i18n.NoticeDeleteFailed, c.label(), e.Message)
		}
		return r
	}

	c.cache.Invalidate(c.kind.Name)
	c.hub.EmitResource(events.EventResourceDeleted, c.kind.Name, id)
	return Result[struct{}]{Notice: c.printer.Sprintf(i18n.NoticeDeleted, c.label())}
}

// IsSubmitting reports whether a result was rejected by the submission guard.
func IsSubmitting[T any](r Result[T]) bool {
	return r.Err != nil && errors.Is(r.Err, ErrSubmitting)
}
