package kv

import (
	"net/url"
	"path"
	"strings"
)

// objectKeys maps store keys onto object names below a root prefix. Keys
// are path-escaped so that content keys, which embed absolute paths, map
// to a single flat object name each.
type objectKeys struct {
	prefix string
}

func (o objectKeys) object(key string) string {
	return path.Join(o.prefix, url.PathEscape(key))
}

func (o objectKeys) listPrefix(prefix string) string {
	if o.prefix == "" {
		return url.PathEscape(prefix)
	}
	return strings.TrimSuffix(o.prefix, "/") + "/" + url.PathEscape(prefix)
}

func (o objectKeys) key(object string) (string, bool) {
	name := object
	if o.prefix != "" {
		root := strings.TrimSuffix(o.prefix, "/") + "/"
		if !strings.HasPrefix(object, root) {
			return "", false
		}
		name = strings.TrimPrefix(object, root)
	}
	key, err := url.PathUnescape(name)
	if err != nil {
		return "", false
	}
	return key, true
}
