package trivia

import (
	"bytes"
	"path"
	"strings"
)

type MediaKind string

const (
	MediaUnknown MediaKind = ""
	MediaImage   MediaKind = "image"
	MediaAudio   MediaKind = "audio"
	MediaVideo   MediaKind = "video"
)

// mediaHint is everything a sniffer may look at. Sniffers never do I/O.
type mediaHint struct {
	mediaType string
	key       string
	head      []byte
}

type sniffer func(mediaHint) MediaKind

// sniffers run in priority order; the first definite answer wins.
var sniffers = []sniffer{
	sniffDeclaredType,
	sniffDataURI,
	sniffExtension,
	sniffMagic,
}

// SniffMediaKind recovers the kind of a media item from whatever is known
// about it: a declared MIME type, a storage key or data URI, and optionally
// the first bytes of the payload.
func SniffMediaKind(mediaType, key string, head []byte) MediaKind {
	h := mediaHint{
		mediaType: strings.ToLower(strings.TrimSpace(mediaType)),
		key:       strings.TrimSpace(key),
		head:      head,
	}
	for _, sniff := range sniffers {
		if kind := sniff(h); kind != MediaUnknown {
			return kind
		}
	}
	return MediaUnknown
}

func kindFromMIME(mime string) MediaKind {
	major, _, _ := strings.Cut(mime, "/")
	switch major {
	case "image":
		return MediaImage
	case "audio":
		return MediaAudio
	case "video":
		return MediaVideo
	}
	// Bare kinds are accepted as stored by older editions.
	switch MediaKind(mime) {
	case MediaImage, MediaAudio, MediaVideo:
		return MediaKind(mime)
	}
	return MediaUnknown
}

func sniffDeclaredType(h mediaHint) MediaKind {
	return kindFromMIME(h.mediaType)
}

func sniffDataURI(h mediaHint) MediaKind {
	rest, ok := strings.CutPrefix(h.key, "data:")
	if !ok {
		return MediaUnknown
	}
	mime, _, _ := strings.Cut(rest, ";")
	mime, _, _ = strings.Cut(mime, ",")
	return kindFromMIME(strings.ToLower(mime))
}

var extensionKinds = map[string]MediaKind{
	".jpg":  MediaImage,
	".jpeg": MediaImage,
	".png":  MediaImage,
	".gif":  MediaImage,
	".webp": MediaImage,
	".svg":  MediaImage,
	".avif": MediaImage,
	".mp3":  MediaAudio,
	".m4a":  MediaAudio,
	".aac":  MediaAudio,
	".wav":  MediaAudio,
	".ogg":  MediaAudio,
	".flac": MediaAudio,
	".mp4":  MediaVideo,
	".webm": MediaVideo,
	".mov":  MediaVideo,
}

func sniffExtension(h mediaHint) MediaKind {
	if h.key == "" || strings.HasPrefix(h.key, "data:") {
		return MediaUnknown
	}
	key, _, _ := strings.Cut(h.key, "?")
	return extensionKinds[strings.ToLower(path.Ext(key))]
}

var magicPrefixes = []struct {
	prefix []byte
	kind   MediaKind
}{
	{[]byte("\x89PNG\r\n\x1a\n"), MediaImage},
	{[]byte("\xff\xd8\xff"), MediaImage},
	{[]byte("GIF87a"), MediaImage},
	{[]byte("GIF89a"), MediaImage},
	{[]byte("ID3"), MediaAudio},
	{[]byte("fLaC"), MediaAudio},
	{[]byte("OggS"), MediaAudio},
}

func sniffMagic(h mediaHint) MediaKind {
	if len(h.head) == 0 {
		return MediaUnknown
	}
	for _, m := range magicPrefixes {
		if bytes.HasPrefix(h.head, m.prefix) {
			return m.kind
		}
	}
	// RIFF containers: WEBP images and WAVE audio.
	if len(h.head) >= 12 && bytes.Equal(h.head[:4], []byte("RIFF")) {
		switch string(h.head[8:12]) {
		case "WEBP":
			return MediaImage
		case "WAVE":
			return MediaAudio
		}
	}
	return MediaUnknown
}
