package event

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrMissingPayloadField = errors.New("event payload is missing a required field")

// BlobNameFromURL returns the blob name within container. Everything up to
// and including the first "/{container}/" is dropped; when the container
// segment is absent the last path component is used. Query strings are
// ignored and escapes decoded.
func BlobNameFromURL(rawURL, container string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", fmt.Errorf("%w: url", ErrMissingPayloadField)
	}

	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else if before, _, found := strings.Cut(rawURL, "?"); found {
		p = before
	}

	var name string
	if _, after, found := strings.Cut(p, "/"+container+"/"); found && container != "" {
		name = after
	} else {
		name = p[strings.LastIndex(p, "/")+1:]
	}

	if name == "" {
		return "", fmt.Errorf("%w: url %q does not name a blob", ErrMissingPayloadField, rawURL)
	}
	return name, nil
}
