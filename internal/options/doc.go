// Package options keeps the settings edited from the setup page.
//
// Options are declared by the program with Define and persisted in a flat
// JSON document (config/config.json under the filesystem root). The
// document is read as JSONC, so hand edits may include comments. Keys in
// the document that no option declares are preserved on Save.
package options
