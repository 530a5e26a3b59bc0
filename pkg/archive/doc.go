// Package archive defines the persisted archive of an account and the store
// that owns it.
//
// A Manifest holds an account's posts newest first together with the resume
// boundary, the largest post ID archived so far. Merge only ever adds posts
// above that boundary. Store.Commit makes a new manifest visible with a
// temp-file-then-rename swap, so readers and later runs see either the old
// manifest or the new one and never a partial write.
package archive
