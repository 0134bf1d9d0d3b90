package cache

import (
	"net/url"
	"strings"
)

// Key identifies one query: a resource type plus its server-side filters in
// canonical form.
type Key struct {
	Resource string
	Params   string
}

// NewKey builds a key; params are sorted so equal filter sets give equal
// keys. Empty values are dropped.
func NewKey(resource string, params map[string]string) Key {
	v := url.Values{}
	for k, val := range params {
		if val != "" {
			v.Set(k, val)
		}
	}
	return Key{Resource: resource, Params: v.Encode()}
}

// KeyFromValues builds a key from an encoded query.
func KeyFromValues(resource string, v url.Values) Key {
	params := make(map[string]string, len(v))
	for k := range v {
		params[k] = v.Get(k)
	}
	return NewKey(resource, params)
}

func (k Key) String() string {
	if k.Params == "" {
		return k.Resource
	}
	var b strings.Builder
	b.WriteString(k.Resource)
	b.WriteByte('?')
	b.WriteString(k.Params)
	return b.String()
}
