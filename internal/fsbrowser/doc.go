// Package fsbrowser exposes the device's local files to the admin surface:
// directory listings, downloads, uploads, create, delete and rename, plus a
// WebDAV view of the same tree. All access is confined to a single root
// directory.
package fsbrowser
