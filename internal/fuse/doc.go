/*
Package fuse exposes cached variants through a read-only FUSE mount.

It is a demonstration frontend, not part of the cache core's contract: a
registry of known variant paths fronts internal/cache.Facade so a directory
listing ("ls /mnt/cache/thumbnails") and a read ("cat") become FetchInfo and
NewVariantInputStream calls. Anything not already registered with Register
reports ENOENT rather than attempting to derive an OperationList from an
arbitrary path.
*/
package fuse
