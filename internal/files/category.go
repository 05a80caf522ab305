package files

import (
	"fmt"
	"maps"
	"mime"
	"slices"
	"strings"

	"github.com/vincent-petithory/dataurl"

	"github.com/celerix-dev/celerix-comms/pkg/schema"
)

const defaultMimeType = "application/octet-stream"

// CategoryFor classifies a MIME type. Prefix rules win over substring rules.
func CategoryFor(mimeType string) schema.Category {
	m := strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(m, "image/"):
		return schema.CategoryImage
	case strings.HasPrefix(m, "audio/"):
		return schema.CategoryAudio
	case strings.HasPrefix(m, "video/"):
		return schema.CategoryVideo
	case strings.Contains(m, "pdf"), strings.Contains(m, "word"), strings.Contains(m, "document"):
		return schema.CategoryDocument
	case strings.Contains(m, "text"):
		return schema.CategoryText
	}
	return schema.CategoryOther
}

// EncodeDataURI renders data as a base64 data URI. Media types that do not
// parse fall back to application/octet-stream.
func EncodeDataURI(mimeType string, data []byte) string {
	mt, params, err := mime.ParseMediaType(mimeType)
	if err != nil || strings.Count(mt, "/") != 1 {
		mt, params = defaultMimeType, nil
	}
	names := slices.Sorted(maps.Keys(params))
	pairs := make([]string, 0, 2*len(names))
	for _, name := range names {
		pairs = append(pairs, name, params[name])
	}
	return dataurl.New(data, mt, pairs...).String()
}

// DecodeDataURI returns the media type (without parameters) and payload of uri.
func DecodeDataURI(uri string) (mimeType string, data []byte, err error) {
	du, err := dataurl.DecodeString(uri)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URI: %w", err)
	}
	return du.ContentType(), du.Data, nil
}
