package archive

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrPostNotFound is returned when a media update names an unknown post
	ErrPostNotFound = errors.New("post not found in manifest")
	// ErrSlotOutOfRange is returned when a media update names a slot the post does not have
	ErrSlotOutOfRange = errors.New("media slot out of range")
	// ErrDowngrade is returned when an update would move a downloaded ref back
	ErrDowngrade = errors.New("downloaded media cannot change state")
)

// Merge returns a new manifest with newPosts placed ahead of current's posts.
// Posts at or below the resume boundary and duplicate IDs inside the batch are
// dropped, so existing posts are never removed or overwritten. The second
// return value is the number of posts actually added. current is not modified.
func Merge(current *Manifest, newPosts []Post) (*Manifest, int) {
	next := current.Clone()

	seen := make(map[uint64]struct{}, len(newPosts))
	fresh := make([]Post, 0, len(newPosts))
	for _, p := range newPosts {
		if p.ID <= current.ResumeBoundary {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		p = p.clone()
		if p.Media == nil {
			p.Media = []MediaRef{}
		}
		fresh = append(fresh, p)
	}
	if len(fresh) == 0 {
		return next, 0
	}

	// Upstream delivers newest first; sorting is a no-op for well-formed input
	// and keeps the manifest ordered if a page ever arrives out of order.
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].ID > fresh[j].ID })

	next.Posts = append(fresh, next.Posts...)
	next.ResumeBoundary = fresh[0].ID
	return next, len(fresh)
}

// index finds a post by ID using the descending order invariant
func (m *Manifest) index(postID uint64) int {
	i := sort.Search(len(m.Posts), func(i int) bool { return m.Posts[i].ID <= postID })
	if i < len(m.Posts) && m.Posts[i].ID == postID {
		return i
	}
	return -1
}

// Post returns the post with the given ID
func (m *Manifest) Post(postID uint64) (Post, bool) {
	i := m.index(postID)
	if i < 0 {
		return Post{}, false
	}
	return m.Posts[i], true
}

// ApplyMedia records a download outcome for one media slot. It reports whether
// the manifest changed. A downloaded ref is final: it is never overwritten.
func (m *Manifest) ApplyMedia(postID uint64, slot int, ref MediaRef) (bool, error) {
	i := m.index(postID)
	if i < 0 {
		return false, fmt.Errorf("%w: %d", ErrPostNotFound, postID)
	}
	media := m.Posts[i].Media
	if slot < 0 || slot >= len(media) {
		return false, fmt.Errorf("%w: post %d slot %d", ErrSlotOutOfRange, postID, slot)
	}

	cur := media[slot]
	if cur == ref {
		return false, nil
	}
	if cur.Status == StatusDownloaded {
		return false, fmt.Errorf("%w: post %d slot %d", ErrDowngrade, postID, slot)
	}
	if ref.Kind != cur.Kind || ref.URL != cur.URL {
		return false, fmt.Errorf("media identity changed for post %d slot %d", postID, slot)
	}
	media[slot] = ref
	return true, nil
}

// Validate checks every manifest invariant. A manifest that fails validation is
// never written.
func (m *Manifest) Validate() error {
	var errs []error

	if m.Version != SchemaVersion {
		errs = append(errs, fmt.Errorf("unsupported manifest version %d", m.Version))
	}
	if m.Account == "" {
		errs = append(errs, errors.New("manifest has no account"))
	}

	var maxID uint64
	for i, p := range m.Posts {
		if i > 0 && p.ID >= m.Posts[i-1].ID {
			errs = append(errs, fmt.Errorf("post %d is out of order or duplicated", p.ID))
		}
		if p.ID > maxID {
			maxID = p.ID
		}
		for slot, r := range p.Media {
			if !r.Kind.Valid() {
				errs = append(errs, fmt.Errorf("post %d slot %d: invalid kind", p.ID, slot))
			}
			if !r.Status.Valid() {
				errs = append(errs, fmt.Errorf("post %d slot %d: invalid status %q", p.ID, slot, r.Status))
			}
			if (r.FileName != "") != (r.Status == StatusDownloaded) {
				errs = append(errs, fmt.Errorf("post %d slot %d: file name must be set exactly when downloaded", p.ID, slot))
			}
		}
	}

	if m.ResumeBoundary != maxID {
		errs = append(errs, fmt.Errorf("resume boundary %d does not match newest post %d", m.ResumeBoundary, maxID))
	}

	return errors.Join(errs...)
}
