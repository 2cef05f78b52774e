/*
Package cache records which source images already have thumbnails, so repeated
runs skip work that was done before.

# Layout

	<root>/.cache/
	    mapping.json    {"2024/IMG_0001.CR2": "thumbnails/2024/IMG_0001.jpg"}
	    mapping.lock
	    thumbnails/

Keys are relative to the scan root and values relative to the cache directory,
so a photo folder can be moved without invalidating its cache.

# Concurrency

Record is a read-modify-write of mapping.json. It runs under an exclusive,
non-blocking lock on mapping.lock (flock on Unix, LockFileEx on Windows) and
re-reads the mapping inside the lock so concurrent writers never lose each
other's entries. Acquisition is tried 5 times with backoff starting at 100ms
and doubling. The mapping is replaced by atomic rename.

Lookup, Exists and All read without locking.

# Corruption

An unparseable mapping file is deleted and treated as empty.
*/
package cache
