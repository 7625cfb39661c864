// Package trash owns the on-disk trash store: the files area holding moved
// entries, the info area holding one metadata record per entry, and the
// pending area used to commit records atomically.
//
// ResolveName computes collision-free names; Store moves files in, reads
// records back, and removes expired entries. All mutations are serialized by
// the store so concurrent connections never pick the same destination name.
package trash
