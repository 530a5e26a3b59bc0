package archive

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// SchemaVersion is written into every manifest. The browsing client depends on it.
const SchemaVersion = 1

// MediaKind is the closed set of attachment kinds the archive knows about.
type MediaKind uint8

const (
	KindPhoto MediaKind = iota + 1
	KindVideo
	KindAnimatedImage
)

// AllKinds lists every MediaKind in a stable order
var AllKinds = []MediaKind{KindPhoto, KindVideo, KindAnimatedImage}

func (k MediaKind) String() string {
	switch k {
	case KindPhoto:
		return "photo"
	case KindVideo:
		return "video"
	case KindAnimatedImage:
		return "animated_image"
	default:
		return fmt.Sprintf("MediaKind(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the known kinds
func (k MediaKind) Valid() bool {
	switch k {
	case KindPhoto, KindVideo, KindAnimatedImage:
		return true
	default:
		return false
	}
}

// DefaultExtension is used when the source URL does not carry a usable one
func (k MediaKind) DefaultExtension() string {
	switch k {
	case KindPhoto:
		return "jpg"
	case KindVideo, KindAnimatedImage:
		return "mp4"
	default:
		return "bin"
	}
}

// ParseMediaKind accepts the persisted names plus the upstream's "animated_gif" and "gif".
func ParseMediaKind(s string) (MediaKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "photo":
		return KindPhoto, nil
	case "video":
		return KindVideo, nil
	case "animated_image", "animated_gif", "gif":
		return KindAnimatedImage, nil
	default:
		return 0, fmt.Errorf("unknown media kind %q", s)
	}
}

func (k MediaKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("cannot encode %s", k)
	}
	return []byte(k.String()), nil
}

func (k *MediaKind) UnmarshalText(b []byte) error {
	parsed, err := ParseMediaKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// KindSet is a selection of media kinds
type KindSet uint8

// NewKindSet builds a set from the given kinds
func NewKindSet(kinds ...MediaKind) KindSet {
	var s KindSet
	for _, k := range kinds {
		if k.Valid() {
			s |= 1 << k
		}
	}
	return s
}

// Has reports whether k is in the set
func (s KindSet) Has(k MediaKind) bool {
	return k.Valid() && s&(1<<k) != 0
}

// Empty reports whether no kind is selected
func (s KindSet) Empty() bool { return s == 0 }

// Kinds returns the selected kinds in AllKinds order
func (s KindSet) Kinds() []MediaKind {
	var out []MediaKind
	for _, k := range AllKinds {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (s KindSet) String() string {
	names := make([]string, 0, 3)
	for _, k := range s.Kinds() {
		names = append(names, k.String())
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// MediaStatus is the download state of a MediaRef
type MediaStatus string

const (
	StatusPending    MediaStatus = "pending"
	StatusDownloaded MediaStatus = "downloaded"
	StatusFailed     MediaStatus = "failed"
)

func (s MediaStatus) Valid() bool {
	switch s {
	case StatusPending, StatusDownloaded, StatusFailed:
		return true
	default:
		return false
	}
}

func (s *MediaStatus) UnmarshalText(b []byte) error {
	v := MediaStatus(b)
	if !v.Valid() {
		return fmt.Errorf("unknown media status %q", string(b))
	}
	*s = v
	return nil
}

// MediaRef is the download state of one attachment of a post.
// FileName is set if and only if Status is StatusDownloaded.
type MediaRef struct {
	Kind     MediaKind   `json:"kind"`
	URL      string      `json:"url"`
	FileName string      `json:"file_name,omitempty"`
	Status   MediaStatus `json:"status"`
}

// Downloaded returns a copy of r marked downloaded into fileName
func (r MediaRef) Downloaded(fileName string) MediaRef {
	r.Status = StatusDownloaded
	r.FileName = fileName
	return r
}

// Failed returns a copy of r marked failed
func (r MediaRef) Failed() MediaRef {
	r.Status = StatusFailed
	r.FileName = ""
	return r
}

// Extension picks the file extension for the local copy. Photos keep the
// extension of their source; motion media is always stored as mp4.
func (r MediaRef) Extension() string {
	if r.Kind != KindPhoto {
		return r.Kind.DefaultExtension()
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return r.Kind.DefaultExtension()
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	if format := u.Query().Get("format"); format != "" {
		ext = strings.ToLower(format)
	}
	switch ext {
	case "jpg", "jpeg":
		return "jpg"
	case "png", "webp", "gif":
		return ext
	default:
		return r.Kind.DefaultExtension()
	}
}

// FileNameFor is the deterministic local name of the media in the given slot
func FileNameFor(postID uint64, slot int, r MediaRef) string {
	return fmt.Sprintf("%d_%d.%s", postID, slot, r.Extension())
}

// Post is one archived timeline entry. Only its Media statuses change after archiving.
type Post struct {
	ID        uint64     `json:"id,string"`
	Timestamp time.Time  `json:"timestamp"`
	Author    string     `json:"author"`
	Text      string     `json:"text"`
	Media     []MediaRef `json:"media"`
}

// HasKind reports whether the post carries media of kind k
func (p Post) HasKind(k MediaKind) bool {
	for _, m := range p.Media {
		if m.Kind == k {
			return true
		}
	}
	return false
}

func (p Post) clone() Post {
	media := make([]MediaRef, len(p.Media))
	copy(media, p.Media)
	p.Media = media
	return p
}

// Manifest is the persisted archive of one account. Posts are kept in
// descending ID order and ResumeBoundary always equals the largest ID.
type Manifest struct {
	Version        int    `json:"version"`
	Account        string `json:"account"`
	UserID         string `json:"user_id,omitempty"`
	ResumeBoundary uint64 `json:"resume_boundary,string"`
	Posts          []Post `json:"posts"`
}

// NewManifest returns an empty manifest for account
func NewManifest(account string) *Manifest {
	return &Manifest{
		Version: SchemaVersion,
		Account: account,
		Posts:   []Post{},
	}
}

// Clone returns a deep copy so callers can build a candidate without touching m
func (m *Manifest) Clone() *Manifest {
	c := *m
	c.Posts = make([]Post, len(m.Posts))
	for i, p := range m.Posts {
		c.Posts[i] = p.clone()
	}
	return &c
}

// MediaCount counts refs by status
func (m *Manifest) MediaCount(status MediaStatus) int {
	n := 0
	for _, p := range m.Posts {
		for _, r := range p.Media {
			if r.Status == status {
				n++
			}
		}
	}
	return n
}
