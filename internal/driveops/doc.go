// Package driveops turns logical paths into folder and file operations on
// one drive. Resolver maps a PathSpec to a folder, creating whatever is
// missing. It is safe to run concurrently against the same tree: name
// conflicts reported by Graph are resolved by re-reading the tree, never by
// client-side locks. Files lists, uploads and downloads by item ID.
//
// SessionProvider binds both to a caller's token source and to the drive
// configured for the deployment, caching the site-to-drive lookup.
package driveops
